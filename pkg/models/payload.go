// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payload holds a single opaque unit of data to be relayed to a sink
type Payload struct {
	Data         []byte
	PartitionKey string

	// TimeCreated is when the payload was received or synthesised
	TimeCreated time.Time
}

// NewPayload wraps data in a Payload with a random partition key
func NewPayload(data []byte) *Payload {
	return &Payload{
		Data:         data,
		PartitionKey: uuid.New().String(),
		TimeCreated:  time.Now().UTC(),
	}
}

// NewPayloadsFromStrings builds one payload per string, preserving order
func NewPayloadsFromStrings(values []string) []*Payload {
	payloads := make([]*Payload, len(values))
	for i, v := range values {
		payloads[i] = NewPayload([]byte(v))
	}
	return payloads
}

// Size returns the number of bytes this payload contributes to a batch
func (p *Payload) Size() int {
	return len(p.Data)
}

func (p *Payload) String() string {
	return fmt.Sprintf(
		"PartitionKey:%s,TimeCreated:%v,Data:%s",
		p.PartitionKey,
		p.TimeCreated,
		string(p.Data),
	)
}

// Batch is an ordered group of payloads published in a single sink call
type Batch struct {
	// Index is the position of this batch within a single Send call
	Index    int
	Payloads []*Payload
}

// Len returns the number of payloads in the batch
func (b *Batch) Len() int {
	return len(b.Payloads)
}

// ByteSize returns the sum of all payload sizes in the batch
func (b *Batch) ByteSize() int {
	size := 0
	for _, p := range b.Payloads {
		size += p.Size()
	}
	return size
}

// GetBatches splits payloads into batches by greedily filling each batch
// until the next payload would take it over either limit:
//
// 1. How many bytes can be in a batch
// 2. How many payloads can be in a batch (0 means unlimited)
//
// Any payload which alone is bigger than maxBatchBytes is returned in
// oversized and never placed in a batch. Order is preserved in both outputs.
func GetBatches(payloads []*Payload, maxBatchBytes int, maxBatchMessages int) (batches []*Batch, oversized []*Payload) {
	var buffer []*Payload
	var bufferByteLen int

	flush := func() {
		batches = append(batches, &Batch{
			Index:    len(batches),
			Payloads: buffer,
		})
		buffer = nil
		bufferByteLen = 0
	}

	for _, p := range payloads {
		size := p.Size()

		if size > maxBatchBytes {
			oversized = append(oversized, p)
			continue
		}

		countExceeded := maxBatchMessages > 0 && len(buffer) == maxBatchMessages
		bytesExceeded := len(buffer) > 0 && bufferByteLen+size > maxBatchBytes
		if countExceeded || bytesExceeded {
			flush()
		}

		buffer = append(buffer, p)
		bufferByteLen += size
	}

	if len(buffer) > 0 {
		flush()
	}
	return batches, oversized
}
