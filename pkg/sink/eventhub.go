// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sink

import (
	"context"
	"fmt"
	"time"

	eventhub "github.com/Azure/azure-event-hubs-go/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/common"
	"github.com/snowplow-devops/event-relay/pkg/models"
)

const (
	// Each batch is sent as one AMQP message with a fixed envelope
	eventHubBatchEnvelopeBytes = 100
	// Every event carries a message ID, a data section and an optional
	// partition key annotation on top of its payload
	eventHubEventOverheadBytes = 256
	// Bounds the framing reserved out of the batch limit
	eventHubMaxBatchMessages = 500
)

// EventHubConfig holds a config object for Azure EventHub
type EventHubConfig struct {
	EventHubNamespace       string `hcl:"namespace,optional" env:"SINK_EVENTHUB_NAMESPACE"`
	EventHubName            string `hcl:"name,optional" env:"SINK_EVENTHUB_NAME"`
	ConnectionString        string `hcl:"connection_string,optional" env:"EVENTHUB_CONNECTION_STRING"`
	MaxAutoRetries          int    `hcl:"max_auto_retries,optional" env:"SINK_EVENTHUB_MAX_AUTO_RETRY"`
	ContextTimeoutInSeconds int    `hcl:"context_timeout_in_seconds,optional" env:"SINK_EVENTHUB_CONTEXT_TIMEOUT_SECONDS"`
	BatchByteLimit          int    `hcl:"batch_byte_limit,optional" env:"SINK_EVENTHUB_BATCH_BYTE_LIMIT"`
	SetEHPartitionKey       bool   `hcl:"set_eh_partition_key,optional" env:"SINK_EVENTHUB_SET_EH_PK"`
}

// EventHubSink holds a new client for writing batches to Azure EventHub
type EventHubSink struct {
	newClient               func() (eventHubClientIface, error)
	client                  eventHubClientIface
	eventHubNamespace       string
	eventHubName            string
	contextTimeoutInSeconds int
	batchByteLimit          int
	setEHPartitionKey       bool

	log *log.Entry
}

// eventHubClientIface allows us to mock the entire eventhub.Hub client, since they don't provide interfaces for mocking https://github.com/Azure/azure-event-hubs-go/issues/98
type eventHubClientIface interface {
	SendBatch(context.Context, eventhub.BatchIterator, ...eventhub.BatchOption) error
	Close(context.Context) error
}

// newEventHubSinkWithInterfaces allows for mocking the eventhub client
func newEventHubSinkWithInterfaces(newClient func() (eventHubClientIface, error), cfg *EventHubConfig) *EventHubSink {
	return &EventHubSink{
		newClient:               newClient,
		eventHubNamespace:       cfg.EventHubNamespace,
		eventHubName:            cfg.EventHubName,
		contextTimeoutInSeconds: cfg.ContextTimeoutInSeconds,
		batchByteLimit:          cfg.BatchByteLimit,
		setEHPartitionKey:       cfg.SetEHPartitionKey,

		log: log.WithFields(log.Fields{"sink": "eventhub", "cloud": "Azure", "namespace": cfg.EventHubNamespace, "eventhub": cfg.EventHubName}),
	}
}

// NewEventHubSink creates a new sink for writing batches to Azure EventHub.
//
// Either a connection string (with or without an EntityPath) or a namespace
// must be configured alongside the EventHub name. Without a connection string
// the client authenticates with the AZURE_* environment credentials.
func NewEventHubSink(cfg *EventHubConfig) (*EventHubSink, error) {
	if cfg.EventHubName == "" || (cfg.ConnectionString == "" && cfg.EventHubNamespace == "") {
		return nil, &models.ConfigurationMissingError{
			Component: "EventHub",
			Fields:    []string{"EVENTHUB_CONNECTION_STRING (or SINK_EVENTHUB_NAMESPACE)", "SINK_EVENTHUB_NAME"},
		}
	}

	if cfg.EventHubNamespace == "" {
		cfg.EventHubNamespace = common.NamespaceFromConnectionString(cfg.ConnectionString)
	}

	newClient := func() (eventHubClientIface, error) {
		// Limits the amount of retries handled natively by the eventhubs package, if none is
		// specified it retries until the context times out which hides the actual error
		opt := eventhub.HubWithSenderMaxRetryCount(cfg.MaxAutoRetries)

		var hub *eventhub.Hub
		var err error
		if cfg.ConnectionString != "" {
			hub, err = eventhub.NewHubFromConnectionString(common.WithEntityPath(cfg.ConnectionString, cfg.EventHubName), opt)
		} else {
			hub, err = eventhub.NewHubWithNamespaceNameAndEnvironment(cfg.EventHubNamespace, cfg.EventHubName, opt)
		}
		if err != nil {
			return nil, err
		}
		return hub, nil
	}

	return newEventHubSinkWithInterfaces(newClient, cfg), nil
}

// The EventHubSinkAdapter type is an adapter for functions to be used as
// pluggable components for EventHub sink. Implements the Pluggable interface.
type EventHubSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f EventHubSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f EventHubSinkAdapter) ProvideDefault() (interface{}, error) {
	// Provide defaults for the optional parameters
	// whose default is not their zero value.
	cfg := &EventHubConfig{
		MaxAutoRetries:          1,
		ContextTimeoutInSeconds: 20,
		BatchByteLimit:          1048576,
	}

	return cfg, nil
}

// AdaptEventHubSinkFunc returns an EventHubSinkAdapter.
func AdaptEventHubSinkFunc(f func(c *EventHubConfig) (*EventHubSink, error)) EventHubSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*EventHubConfig)
		if !ok {
			return nil, errors.New("invalid input, expected EventHubConfig")
		}

		return f(cfg)
	}
}

// Open builds the eventhub client
func (eh *EventHubSink) Open() error {
	if eh.client != nil {
		return nil
	}

	client, err := eh.newClient()
	if err != nil {
		return errors.Wrap(err, "Error initialising EventHub client")
	}
	eh.client = client
	return nil
}

// Publish sends the batch to the EventHub in a single SendBatch call
func (eh *EventHubSink) Publish(ctx context.Context, batch *models.Batch) error {
	if eh.client == nil {
		return errors.New("EventHub client has not been opened, must call Open() before attempting to publish")
	}

	eh.log.Debugf("Writing batch %d of %d payloads to eventHub ...", batch.Index, batch.Len())

	ehBatch := make([]*eventhub.Event, batch.Len())
	for i, p := range batch.Payloads {
		ehEvent := eventhub.NewEvent(p.Data)
		if eh.setEHPartitionKey {
			partitionKey := p.PartitionKey
			ehEvent.PartitionKey = &partitionKey
		}
		ehBatch[i] = ehEvent
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(eh.contextTimeoutInSeconds)*time.Second)
	defer cancel()

	batchIterator := eventhub.NewEventBatchIterator(ehBatch...)
	err := eh.client.SendBatch(ctx, batchIterator, eventhub.BatchWithMaxSizeInBytes(eh.batchByteLimit))
	if err != nil {
		return errors.Wrap(err, "Failed to send batch to EventHub")
	}

	eh.log.Debugf("Successfully wrote batch %d of %d payloads", batch.Index, batch.Len())
	return nil
}

// Close closes the eventhub client.
func (eh *EventHubSink) Close() {
	if eh.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(10)*time.Second)
	defer cancel()
	if err := eh.client.Close(ctx); err != nil {
		eh.log.WithFields(log.Fields{"error": err}).Warn("Failed to close EventHub client")
	}
	eh.client = nil
}

// MaximumBatchMessages returns how many events the reserved framing covers
func (eh *EventHubSink) MaximumBatchMessages() int {
	return eventHubMaxBatchMessages
}

// MaximumBatchBytes leaves room in the configured batch limit for the AMQP
// batch envelope and the framing added to each of up to eventHubMaxBatchMessages
// events, so a batch goes out as a single AMQP message
func (eh *EventHubSink) MaximumBatchBytes() int {
	return capMinusOverhead(eh.batchByteLimit, eventHubBatchEnvelopeBytes+eventHubMaxBatchMessages*eventHubEventOverheadBytes)
}

// GetID returns an identifier for this sink
func (eh *EventHubSink) GetID() string {
	return fmt.Sprintf("sb://%s.servicebus.windows.net/;EntityPath=%s", eh.eventHubNamespace, eh.eventHubName)
}
