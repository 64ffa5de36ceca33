// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package testutil

import (
	"context"
	"sync"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

// MockSink records every call made against it and fails on demand
type MockSink struct {
	// OpenErr is returned from every Open call when set
	OpenErr error

	// FailOn maps a 1-based Publish call number to the error it returns
	FailOn map[int]error

	// MaxMessages is reported by MaximumBatchMessages
	MaxMessages int

	// MaxBytes is reported by MaximumBatchBytes
	MaxBytes int

	ID string

	mu           sync.Mutex
	publishCalls int
	openCalls    int
	closeCalls   int
	published    []*models.Batch
	failed       []*models.Batch
}

// NewMockSink returns a healthy mock sink
func NewMockSink() *MockSink {
	return &MockSink{ID: "mock", FailOn: make(map[int]error)}
}

// Open implements sinkiface.Sink
func (m *MockSink) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openCalls++
	return m.OpenErr
}

// Publish implements sinkiface.Sink
func (m *MockSink) Publish(ctx context.Context, batch *models.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.publishCalls++
	if err, ok := m.FailOn[m.publishCalls]; ok {
		m.failed = append(m.failed, batch)
		return err
	}
	m.published = append(m.published, batch)
	return nil
}

// Close implements sinkiface.Sink
func (m *MockSink) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCalls++
}

// MaximumBatchMessages implements sinkiface.Sink
func (m *MockSink) MaximumBatchMessages() int {
	return m.MaxMessages
}

// MaximumBatchBytes implements sinkiface.Sink
func (m *MockSink) MaximumBatchBytes() int {
	return m.MaxBytes
}

// GetID implements sinkiface.Sink
func (m *MockSink) GetID() string {
	return m.ID
}

// PublishCalls returns how many times Publish was invoked
func (m *MockSink) PublishCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.publishCalls
}

// OpenCalls returns how many times Open was invoked
func (m *MockSink) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.openCalls
}

// CloseCalls returns how many times Close was invoked
func (m *MockSink) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeCalls
}

// Published returns the batches which were accepted, in call order
func (m *MockSink) Published() []*models.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*models.Batch{}, m.published...)
}

// Failed returns the batches which were rejected, in call order
func (m *MockSink) Failed() []*models.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*models.Batch{}, m.failed...)
}

// PublishedData flattens the accepted batches into their payload strings
func (m *MockSink) PublishedData() []string {
	var data []string
	for _, b := range m.Published() {
		for _, p := range b.Payloads {
			data = append(data, string(p.Data))
		}
	}
	return data
}
