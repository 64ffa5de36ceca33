// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package eventhubsource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	eventhub "github.com/Azure/azure-event-hubs-go/v3"
	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

type mockHub struct {
	partitions []string
	events     map[string][]*eventhub.Event
	infoErr    error

	mu         sync.Mutex
	received   []string
	closeCalls int
}

func (m *mockHub) Receive(ctx context.Context, partitionID string, handler eventhub.Handler, opts ...eventhub.ReceiveOption) (*eventhub.ListenerHandle, error) {
	m.mu.Lock()
	m.received = append(m.received, partitionID)
	m.mu.Unlock()

	for _, e := range m.events[partitionID] {
		if err := handler(ctx, e); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (m *mockHub) GetRuntimeInformation(ctx context.Context) (*eventhub.HubRuntimeInformation, error) {
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return &eventhub.HubRuntimeInformation{PartitionIDs: m.partitions}, nil
}

func (m *mockHub) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func TestSource_Read(t *testing.T) {
	assert := assert.New(t)

	enqueued := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	key := "pk-1"
	first := eventhub.NewEventFromString("first")
	first.PartitionKey = &key
	first.SystemProperties = &eventhub.SystemProperties{EnqueuedTime: &enqueued}

	hub := &mockHub{
		partitions: []string{"0", "1"},
		events: map[string][]*eventhub.Event{
			"0": {first},
			"1": {eventhub.NewEventFromString("second"), eventhub.NewEventFromString("third")},
		},
	}
	s := newSourceWithInterfaces(hub, &Configuration{EventHubNamespace: "ns", EventHubName: "hub", ConsumerGroup: "relay", StartFromLatest: true})
	assert.Equal("namespace:ns:name:hub", s.GetID())

	var mu sync.Mutex
	var payloads []*models.Payload
	handle := func(p *models.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		payloads = append(payloads, p)
		if string(p.Data) == "third" {
			return errors.New("handler failure is only logged")
		}
		return nil
	}

	done := make(chan error)
	go func() { done <- s.Read(context.Background(), handle) }()

	assert.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == 3
	}, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.Nil(<-done)

	assert.Equal("first", string(payloads[0].Data))
	assert.Equal("pk-1", payloads[0].PartitionKey)
	assert.Equal(enqueued, payloads[0].TimeCreated)
	assert.NotEmpty(payloads[1].PartitionKey)
	assert.Equal([]string{"0", "1"}, hub.received)
	assert.Equal(1, hub.closeCalls)
}

func TestSource_ReadRuntimeInfoFailure(t *testing.T) {
	assert := assert.New(t)

	hub := &mockHub{infoErr: errors.New("unauthorized")}
	s := newSourceWithInterfaces(hub, &Configuration{EventHubNamespace: "ns", EventHubName: "hub"})

	err := s.Read(context.Background(), func(*models.Payload) error { return nil })
	assert.Equal("Failed to get EventHub runtime information: unauthorized", err.Error())
	assert.Equal(1, hub.closeCalls)
}

func TestSource_ContextCancel(t *testing.T) {
	assert := assert.New(t)

	hub := &mockHub{partitions: []string{"0"}}
	s := newSourceWithInterfaces(hub, &Configuration{EventHubNamespace: "ns", EventHubName: "hub"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Nil(s.Read(ctx, func(*models.Payload) error { return nil }))

	// Stop after exit is a no-op
	s.Stop()
	s.Stop()
}

func TestNewSource_ConfigurationMissing(t *testing.T) {
	assert := assert.New(t)

	s, err := NewSource(&Configuration{EventHubName: "hub"})
	assert.Nil(s)

	var cfgErr *models.ConfigurationMissingError
	assert.True(errors.As(err, &cfgErr))
}
