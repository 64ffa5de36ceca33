// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package relay

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/models"
	"github.com/snowplow-devops/event-relay/pkg/retry"
	"github.com/snowplow-devops/event-relay/pkg/sink/sinkiface"
)

// DefaultMaxBatchBytes matches the EventHub batch size limit
const DefaultMaxBatchBytes = 1048576

// Options configures a Relay
type Options struct {
	// MaxBatchMessages caps the number of payloads per batch, 0 for no cap
	MaxBatchMessages int

	// PublishAttempts is how many times a failed batch is offered to the sink
	PublishAttempts int
	RetryDelay      time.Duration

	// RandSource drives GenerateFiller; seeded from the clock when nil
	RandSource rand.Source
}

// Relay splits payloads into size bounded batches and forwards each to a sink
type Relay struct {
	maxBatchMessages int
	publishAttempts  int
	retryDelay       time.Duration

	randMu sync.Mutex
	rand   *rand.Rand

	log *log.Entry
}

// New builds a Relay from its options and the logger it should report through
func New(opts *Options, logger *log.Entry) *Relay {
	if opts == nil {
		opts = &Options{}
	}
	if logger == nil {
		logger = log.WithFields(log.Fields{"name": "relay"})
	}

	source := opts.RandSource
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}

	attempts := opts.PublishAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Relay{
		maxBatchMessages: opts.MaxBatchMessages,
		publishAttempts:  attempts,
		retryDelay:       opts.RetryDelay,
		rand:             rand.New(source),
		log:              logger,
	}
}

// Send batches the payloads and publishes each batch to the sink in order.
// Batches are bound by maxBatchBytes or the sink's own byte cap, whichever
// is smaller.
//
// The sink is opened on entry and closed before returning. Oversized payloads
// and failed batches are recorded in the result and never stop the remaining
// payloads from being sent.
func (r *Relay) Send(ctx context.Context, payloads []*models.Payload, sink sinkiface.Sink, maxBatchBytes int) *models.RelayResult {
	if maxBatchBytes <= 0 {
		r.log.Warn((&models.InvalidParameterError{
			Name:    "maxBatchBytes",
			Value:   strconv.Itoa(maxBatchBytes),
			Default: DefaultMaxBatchBytes,
		}).Error())
		maxBatchBytes = DefaultMaxBatchBytes
	}

	result := &models.RelayResult{}
	if len(payloads) == 0 {
		return result
	}

	byteLimit := smallerLimit(maxBatchBytes, sink.MaximumBatchBytes())
	batches, oversized := models.GetBatches(payloads, byteLimit, smallerLimit(r.maxBatchMessages, sink.MaximumBatchMessages()))

	if len(oversized) > 0 {
		for _, p := range oversized {
			r.log.WithFields(log.Fields{"size": p.Size(), "limit": byteLimit, "partition_key": p.PartitionKey}).Warn("Skipping oversized payload")
		}
		result = result.Append(models.NewOversizedResult(oversized, byteLimit))
	}

	if len(batches) == 0 {
		return result
	}

	sinkLog := r.log.WithFields(log.Fields{"sink_id": sink.GetID()})

	defer sink.Close()
	if err := sink.Open(); err != nil {
		sinkLog.WithFields(log.Fields{"error": err}).Error("Failed to open sink")

		var unsent []*models.Payload
		for _, b := range batches {
			unsent = append(unsent, b.Payloads...)
		}
		return result.Append(models.NewUnsentResult(unsent, &models.TransportError{SinkID: sink.GetID(), Err: err}))
	}

	for _, batch := range batches {
		b := batch
		err := retry.Retry(ctx, sinkLog, r.publishAttempts, r.retryDelay, fmt.Sprintf("batch %d", b.Index), func() error {
			return sink.Publish(ctx, b)
		})

		if err != nil {
			tErr := &models.TransportError{SinkID: sink.GetID(), Err: err}
			sinkLog.WithFields(log.Fields{"error": err, "batch": b.Index, "size": b.Len()}).Error("Failed to publish batch")
			result = result.Append(models.NewBatchFailedResult(b, tErr))
			continue
		}

		sinkLog.Debugf("Published batch %d (%d payloads, %d bytes)", b.Index, b.Len(), b.ByteSize())
		result = result.Append(models.NewBatchSentResult(b))
	}

	if result.HasFailures() {
		sinkLog.Warnf("Relayed with failures: %s", result.String())
	} else {
		sinkLog.Infof("Relayed: %s", result.String())
	}
	return result
}

// smallerLimit picks the smaller of two limits where 0 or less means unset
func smallerLimit(a int, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case b < a:
		return b
	default:
		return a
	}
}
