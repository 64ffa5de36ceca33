// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sink

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

// API Documentation: https://cloud.google.com/pubsub/quotas#resource_limits
const pubSubPublishRequestByteLimit = 10485760

// PubSubConfig configures the destination topic
type PubSubConfig struct {
	ProjectID string `hcl:"project_id,optional" env:"SINK_PUBSUB_PROJECT_ID"`
	TopicName string `hcl:"topic_name,optional" env:"SINK_PUBSUB_TOPIC_NAME"`
}

// PubSubSink holds a new client for writing batches to Google PubSub
type PubSubSink struct {
	newClient func(ctx context.Context) (*pubsub.Client, error)
	projectID string
	client    *pubsub.Client
	topic     *pubsub.Topic
	topicName string

	log *log.Entry
}

// NewPubSubSink creates a new sink for writing batches to Google PubSub
func NewPubSubSink(cfg *PubSubConfig) (*PubSubSink, error) {
	if cfg.ProjectID == "" || cfg.TopicName == "" {
		return nil, &models.ConfigurationMissingError{
			Component: "PubSub",
			Fields:    []string{"SINK_PUBSUB_PROJECT_ID", "SINK_PUBSUB_TOPIC_NAME"},
		}
	}

	newClient := func(ctx context.Context) (*pubsub.Client, error) {
		return pubsub.NewClient(ctx, cfg.ProjectID)
	}

	return newPubSubSinkWithClientFunc(newClient, cfg), nil
}

// newPubSubSinkWithClientFunc allows a client connected to a test server to be supplied
func newPubSubSinkWithClientFunc(newClient func(ctx context.Context) (*pubsub.Client, error), cfg *PubSubConfig) *PubSubSink {
	return &PubSubSink{
		newClient: newClient,
		projectID: cfg.ProjectID,
		topicName: cfg.TopicName,
		log:       log.WithFields(log.Fields{"sink": "pubsub", "cloud": "GCP", "project": cfg.ProjectID, "topic": cfg.TopicName}),
	}
}

// The PubSubSinkAdapter type is an adapter for functions to be used as
// pluggable components for PubSub sink. Implements the Pluggable interface.
type PubSubSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f PubSubSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f PubSubSinkAdapter) ProvideDefault() (interface{}, error) {
	// Provide defaults if any
	cfg := &PubSubConfig{}

	return cfg, nil
}

// AdaptPubSubSinkFunc returns a PubSubSinkAdapter.
func AdaptPubSubSinkFunc(f func(c *PubSubConfig) (*PubSubSink, error)) PubSubSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*PubSubConfig)
		if !ok {
			return nil, errors.New("invalid input, expected PubSubConfig")
		}

		return f(cfg)
	}
}

// Open creates the client and opens a pipe to the topic
func (ps *PubSubSink) Open() error {
	if ps.topic != nil {
		return nil
	}

	client, err := ps.newClient(context.Background())
	if err != nil {
		return errors.Wrap(err, "Failed to create PubSub client")
	}

	ps.log.Debugf("Opening sink for topic '%s' in project %s", ps.topicName, ps.projectID)
	ps.client = client
	ps.topic = client.Topic(ps.topicName)
	return nil
}

// Publish hands every payload of the batch to the topic and then waits on
// all of the publish results; any failure fails the batch
func (ps *PubSubSink) Publish(ctx context.Context, batch *models.Batch) error {
	if ps.topic == nil {
		return errors.New("Topic has not been opened, must call Open() before attempting to publish")
	}

	ps.log.Debugf("Writing batch %d of %d payloads to topic ...", batch.Index, batch.Len())

	var errResult error
	results := make([]*pubsub.PublishResult, 0, batch.Len())
	for _, p := range batch.Payloads {
		if len(p.Data) == 0 {
			errResult = multierror.Append(errResult, errors.New("pubsub cannot accept empty messages"))
			continue
		}
		results = append(results, ps.topic.Publish(ctx, &pubsub.Message{Data: p.Data}))
	}

	for _, r := range results {
		if _, err := r.Get(ctx); err != nil {
			errResult = multierror.Append(errResult, err)
		}
	}

	if errResult != nil {
		return errors.Wrap(errResult, "Error writing batch to PubSub topic")
	}

	ps.log.Debugf("Successfully wrote batch %d of %d payloads", batch.Index, batch.Len())
	return nil
}

// Close stops the topic and the client
func (ps *PubSubSink) Close() {
	if ps.topic == nil {
		return
	}

	ps.log.Debugf("Closing sink for topic '%s' in project %s", ps.topicName, ps.projectID)
	ps.topic.Stop()
	ps.topic = nil

	if err := ps.client.Close(); err != nil {
		ps.log.WithFields(log.Fields{"error": err}).Warn("Failed to close PubSub client")
	}
	ps.client = nil
}

// MaximumBatchMessages returns 0 as the client handles its own bundling
func (ps *PubSubSink) MaximumBatchMessages() int {
	return 0
}

// MaximumBatchBytes returns the Publish request size limit
func (ps *PubSubSink) MaximumBatchBytes() int {
	return pubSubPublishRequestByteLimit
}

// GetID returns the identifier for this sink
func (ps *PubSubSink) GetID() string {
	return fmt.Sprintf("projects/%s/topics/%s", ps.projectID, ps.topicName)
}
