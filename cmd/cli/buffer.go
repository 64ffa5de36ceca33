// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package cli

import (
	"context"
	"sync"
	"time"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

const (
	defaultFlushEvents   = 500
	defaultFlushInterval = 5 * time.Second
)

// flushBuffer collects payloads pushed concurrently by a source and hands
// them over in rounds, either once flushEvents are pending or on every tick.
//
// A round is taken and delivered under the same lock, so rounds reach
// deliver one at a time and in the order their payloads were added. Add
// blocks while a round is being delivered.
type flushBuffer struct {
	flushEvents int
	deliver     func([]*models.Payload)

	mu      sync.Mutex
	pending []*models.Payload
}

func newFlushBuffer(flushEvents int, deliver func([]*models.Payload)) *flushBuffer {
	if flushEvents < 1 {
		flushEvents = 1
	}
	return &flushBuffer{
		flushEvents: flushEvents,
		deliver:     deliver,
	}
}

// Add queues a payload, delivering the pending round when it is full
func (b *flushBuffer) Add(p *models.Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, p)
	if len(b.pending) >= b.flushEvents {
		b.sendLocked()
	}
	return nil
}

// Flush delivers whatever is pending
func (b *flushBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sendLocked()
}

// Run flushes on every interval until ctx is done, then flushes one last
// time. An interval of 0 or less uses defaultFlushInterval.
func (b *flushBuffer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

// sendLocked must be called with mu held
func (b *flushBuffer) sendLocked() {
	if len(b.pending) == 0 {
		return
	}

	round := b.pending
	b.pending = nil
	b.deliver(round)
}
