// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package eventhubsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	eventhub "github.com/Azure/azure-event-hubs-go/v3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/common"
	"github.com/snowplow-devops/event-relay/pkg/models"
)

// Configuration configures the upstream EventHub to consume from
type Configuration struct {
	EventHubNamespace string `hcl:"namespace,optional" env:"SOURCE_EVENTHUB_NAMESPACE"`
	EventHubName      string `hcl:"name,optional" env:"SOURCE_EVENTHUB_NAME"`
	ConnectionString  string `hcl:"connection_string,optional" env:"SOURCE_EVENTHUB_CONNECTION_STRING"`
	ConsumerGroup     string `hcl:"consumer_group,optional" env:"SOURCE_EVENTHUB_CONSUMER_GROUP"`
	StartFromLatest   bool   `hcl:"start_from_latest,optional" env:"SOURCE_EVENTHUB_START_FROM_LATEST"`
}

// Source receives events from every partition of an EventHub
type Source struct {
	eventHubNamespace string
	eventHubName      string
	consumerGroup     string
	startFromLatest   bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	client eventhubIface
	log    *log.Entry
}

type eventhubIface interface {
	Receive(ctx context.Context, partitionID string, handler eventhub.Handler, opts ...eventhub.ReceiveOption) (*eventhub.ListenerHandle, error)
	GetRuntimeInformation(context.Context) (*eventhub.HubRuntimeInformation, error)
	Close(context.Context) error
}

// NewSource creates a new handler for reading events from Azure EventHub
func NewSource(cfg *Configuration) (*Source, error) {
	if cfg.EventHubName == "" || (cfg.ConnectionString == "" && cfg.EventHubNamespace == "") {
		return nil, &models.ConfigurationMissingError{
			Component: "EventHub source",
			Fields:    []string{"SOURCE_EVENTHUB_CONNECTION_STRING (or SOURCE_EVENTHUB_NAMESPACE)", "SOURCE_EVENTHUB_NAME"},
		}
	}

	if cfg.EventHubNamespace == "" {
		cfg.EventHubNamespace = common.NamespaceFromConnectionString(cfg.ConnectionString)
	}

	var hub *eventhub.Hub
	var err error
	if cfg.ConnectionString != "" {
		hub, err = eventhub.NewHubFromConnectionString(common.WithEntityPath(cfg.ConnectionString, cfg.EventHubName))
	} else {
		hub, err = eventhub.NewHubWithNamespaceNameAndEnvironment(cfg.EventHubNamespace, cfg.EventHubName)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Error initialising EventHub client")
	}

	return newSourceWithInterfaces(hub, cfg), nil
}

// newSourceWithInterfaces allows the user to provide a mocked client
func newSourceWithInterfaces(client eventhubIface, cfg *Configuration) *Source {
	// Ensures as even as possible distribution of UUIDs
	uuid.EnableRandPool()

	return &Source{
		eventHubNamespace: cfg.EventHubNamespace,
		eventHubName:      cfg.EventHubName,
		consumerGroup:     cfg.ConsumerGroup,
		startFromLatest:   cfg.StartFromLatest,
		client:            client,
		log: log.WithFields(log.Fields{
			"source":            "eventhub",
			"eventHubNamespace": cfg.EventHubNamespace,
			"eventHubName":      cfg.EventHubName,
		}),
	}
}

// Read registers a receiver on every partition and blocks until Stop is
// called or the context is done. Each event is passed to handle as a Payload;
// handler errors are logged and the event is not redelivered.
func (s *Source) Read(ctx context.Context, handle func(*models.Payload) error) error {
	s.log.Info("Reading events from eventhub...")

	ctx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	defer cancel()

	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := s.client.Close(closeCtx); err != nil {
			s.log.WithFields(log.Fields{"error": err}).Warn("Failed to close EventHub client")
		}
	}()

	handler := func(c context.Context, event *eventhub.Event) error {
		s.log.Debugf("Read event with id: %s", event.ID)

		if err := handle(toPayload(event)); err != nil {
			s.log.WithFields(log.Fields{"error": err, "id": event.ID}).Error("Failed to handle event")
		}
		return nil
	}

	runtimeInfo, err := s.client.GetRuntimeInformation(ctx)
	if err != nil {
		return errors.Wrap(err, "Failed to get EventHub runtime information")
	}

	var opts []eventhub.ReceiveOption
	if s.consumerGroup != "" {
		opts = append(opts, eventhub.ReceiveWithConsumerGroup(s.consumerGroup))
	}
	if s.startFromLatest {
		opts = append(opts, eventhub.ReceiveWithLatestOffset())
	}

	for _, partitionID := range runtimeInfo.PartitionIDs {
		if _, err := s.client.Receive(ctx, partitionID, handler, opts...); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Failed to receive from partition %s", partitionID))
		}
	}

	<-ctx.Done()
	return nil
}

func toPayload(event *eventhub.Event) *models.Payload {
	payload := models.NewPayload(event.Data)
	if event.PartitionKey != nil && *event.PartitionKey != "" {
		payload.PartitionKey = *event.PartitionKey
	}
	if event.SystemProperties != nil && event.SystemProperties.EnqueuedTime != nil {
		payload.TimeCreated = *event.SystemProperties.EnqueuedTime
	}
	return payload
}

// Stop cancels the source receiver
func (s *Source) Stop() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()

	if s.cancel != nil {
		s.log.Warn("Cancelling EventHub receiver...")
		s.cancel()
	}
	s.cancel = nil
}

// GetID returns the identifier for this source
func (s *Source) GetID() string {
	return fmt.Sprintf("namespace:%s:name:%s", s.eventHubNamespace, s.eventHubName)
}
