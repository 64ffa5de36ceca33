// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package models

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/snowplow-devops/event-relay/pkg/common"
)

// BatchOutcome records what happened to one flushed batch
type BatchOutcome struct {
	Index int
	Size  int
	Bytes int
	Err   error
}

// Sent returns whether the batch was published
func (o *BatchOutcome) Sent() bool {
	return o.Err == nil
}

// Failure groups the payloads that could not be relayed for one reason
type Failure struct {
	Kind ErrorKind

	// BatchIndex is the failed batch, or -1 when the failure happened
	// before batching (oversized payloads, sink not opened)
	BatchIndex int
	Payloads   []*Payload
	Err        error
}

// RelayResult contains the outcome of a Send call
type RelayResult struct {
	// Accepted is the number of payloads published
	Accepted int64

	// Sent is the number of batches published
	Sent int64

	// Failed is the number of payloads which were not published
	Failed int64

	// BatchesFailed is the number of batches the sink rejected
	BatchesFailed int64

	Batches  []*BatchOutcome
	Failures []*Failure

	// Delta between TimeCreated and the time of publish tells us how long
	// payloads waited inside the relay
	MaxMsgLatency time.Duration
	MinMsgLatency time.Duration
	AvgMsgLatency time.Duration
}

// NewBatchSentResult builds the result for a batch which was published
func NewBatchSentResult(batch *Batch) *RelayResult {
	return NewBatchSentResultWithTime(batch, time.Now().UTC())
}

// NewBatchSentResultWithTime builds the result for a batch which was published
// at timeOfWrite along with derived latency measures
func NewBatchSentResultWithTime(batch *Batch, timeOfWrite time.Time) *RelayResult {
	r := RelayResult{
		Accepted: int64(batch.Len()),
		Sent:     1,
		Batches: []*BatchOutcome{
			{Index: batch.Index, Size: batch.Len(), Bytes: batch.ByteSize()},
		},
	}

	var sumMessageLatency time.Duration
	var counted int64
	for _, p := range batch.Payloads {
		if p.TimeCreated.IsZero() {
			continue
		}
		messageLatency := timeOfWrite.Sub(p.TimeCreated)
		if r.MaxMsgLatency < messageLatency {
			r.MaxMsgLatency = messageLatency
		}
		if r.MinMsgLatency > messageLatency || r.MinMsgLatency == time.Duration(0) {
			r.MinMsgLatency = messageLatency
		}
		sumMessageLatency += messageLatency
		counted++
	}
	r.AvgMsgLatency = common.GetAverageFromDuration(sumMessageLatency, counted)

	return &r
}

// NewBatchFailedResult builds the result for a batch the sink rejected
func NewBatchFailedResult(batch *Batch, err error) *RelayResult {
	return &RelayResult{
		Failed:        int64(batch.Len()),
		BatchesFailed: 1,
		Batches: []*BatchOutcome{
			{Index: batch.Index, Size: batch.Len(), Bytes: batch.ByteSize(), Err: err},
		},
		Failures: []*Failure{
			{Kind: KindTransportError, BatchIndex: batch.Index, Payloads: batch.Payloads, Err: err},
		},
	}
}

// NewOversizedResult records every oversized payload as its own failure
func NewOversizedResult(oversized []*Payload, limit int) *RelayResult {
	r := &RelayResult{
		Failed: int64(len(oversized)),
	}
	for _, p := range oversized {
		r.Failures = append(r.Failures, &Failure{
			Kind:       KindPayloadTooLarge,
			BatchIndex: -1,
			Payloads:   []*Payload{p},
			Err:        &PayloadTooLargeError{Size: p.Size(), Limit: limit},
		})
	}
	return r
}

// NewUnsentResult records payloads that could not be offered to a sink at all
func NewUnsentResult(payloads []*Payload, err error) *RelayResult {
	return &RelayResult{
		Failed: int64(len(payloads)),
		Failures: []*Failure{
			{Kind: KindTransportError, BatchIndex: -1, Payloads: payloads, Err: err},
		},
	}
}

// Total returns the sum of Accepted + Failed payloads
func (rr *RelayResult) Total() int64 {
	return rr.Accepted + rr.Failed
}

// HasFailures returns whether any payload was not relayed
func (rr *RelayResult) HasFailures() bool {
	return rr.Failed > 0
}

// FailedOfKind counts failed payloads with the given kind
func (rr *RelayResult) FailedOfKind(kind ErrorKind) int64 {
	var count int64
	for _, f := range rr.Failures {
		if f.Kind == kind {
			count += int64(len(f.Payloads))
		}
	}
	return count
}

// Err combines all failure errors, or returns nil when everything was relayed
func (rr *RelayResult) Err() error {
	var errResult error
	for _, f := range rr.Failures {
		errResult = multierror.Append(errResult, f.Err)
	}
	return errResult
}

// Append will add another relay result to the source one to allow for
// result concatenation and then return the resultant struct
func (rr *RelayResult) Append(nrr *RelayResult) *RelayResult {
	rrC := *rr

	if nrr != nil {
		rrC.Accepted += nrr.Accepted
		rrC.Sent += nrr.Sent
		rrC.Failed += nrr.Failed
		rrC.BatchesFailed += nrr.BatchesFailed
		rrC.Batches = append(append([]*BatchOutcome{}, rr.Batches...), nrr.Batches...)
		rrC.Failures = append(append([]*Failure{}, rr.Failures...), nrr.Failures...)

		if rrC.MaxMsgLatency < nrr.MaxMsgLatency {
			rrC.MaxMsgLatency = nrr.MaxMsgLatency
		}
		if nrr.MinMsgLatency > 0 && (rrC.MinMsgLatency > nrr.MinMsgLatency || rrC.MinMsgLatency == time.Duration(0)) {
			rrC.MinMsgLatency = nrr.MinMsgLatency
		}
		switch {
		case rr.Accepted == 0:
			rrC.AvgMsgLatency = nrr.AvgMsgLatency
		case nrr.Accepted > 0:
			weighted := time.Duration(rr.Accepted)*rr.AvgMsgLatency + time.Duration(nrr.Accepted)*nrr.AvgMsgLatency
			rrC.AvgMsgLatency = common.GetAverageFromDuration(weighted, rrC.Accepted)
		}
	}

	return &rrC
}

func (rr *RelayResult) String() string {
	return fmt.Sprintf(
		"Accepted:%d,Failed:%d,BatchesSent:%d,BatchesFailed:%d,Oversized:%d,MaxMsgLatency:%v",
		rr.Accepted,
		rr.Failed,
		rr.Sent,
		rr.BatchesFailed,
		rr.FailedOfKind(KindPayloadTooLarge),
		rr.MaxMsgLatency,
	)
}
