// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package cloudfunctions

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/cmd"
)

// PubSubMessage is the payload of a Pub/Sub message
type PubSubMessage struct {
	Data       []byte            `json:"data"`
	Attributes map[string]string `json:"attributes"`
}

// HandleRequest relays a Pub/Sub message to the configured sink.
// Returning an error makes the platform retry the message.
func HandleRequest(ctx context.Context, m PubSubMessage) error {
	cfg, sentryEnabled, err := cmd.Init()
	if err != nil {
		return err
	}
	if sentryEnabled {
		defer sentry.Flush(2 * time.Second)
	}

	t, err := cmd.NewTrigger(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	if len(m.Data) == 0 {
		log.Warn("Received an empty Pub/Sub message, nothing to relay")
		return nil
	}

	_, err = t.StreamTriggerHandler(ctx, []string{string(m.Data)})
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Error(err)
	}
	return err
}
