// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package statsreceiveriface

import (
	"github.com/snowplow-devops/event-relay/pkg/models"
)

// StatsReceiver describes the interface for how to push relay outcomes
// to a downstream store
type StatsReceiver interface {
	Send(result *models.RelayResult)
	Close()
}
