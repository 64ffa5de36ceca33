// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sinkiface

import (
	"context"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

// Sink describes the interface for a streaming backend which accepts
// batches of payloads
type Sink interface {
	// Open acquires the connection used by Publish. A sink can be opened
	// again after it has been closed.
	Open() error

	// Publish sends every payload of the batch in a single transport call
	Publish(ctx context.Context, batch *models.Batch) error

	// Close releases whatever Open acquired
	Close()

	// MaximumBatchMessages returns the most payloads a single Publish
	// accepts, or 0 when only the byte limit applies
	MaximumBatchMessages() int

	// MaximumBatchBytes returns the most payload bytes a single Publish can
	// carry once the transport adds its own framing, or 0 for no limit
	MaximumBatchBytes() int

	GetID() string
}
