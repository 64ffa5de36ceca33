// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBatchSentResultWithTime(t *testing.T) {
	assert := assert.New(t)

	timeNow := time.Now().UTC()

	batch := &Batch{
		Index: 2,
		Payloads: []*Payload{
			{Data: []byte("Baz"), PartitionKey: "partition1", TimeCreated: timeNow.Add(time.Duration(-50) * time.Minute)},
			{Data: []byte("Bar"), PartitionKey: "partition2", TimeCreated: timeNow.Add(time.Duration(-70) * time.Minute)},
		},
	}

	r := NewBatchSentResultWithTime(batch, timeNow)
	assert.NotNil(r)

	assert.Equal(int64(2), r.Accepted)
	assert.Equal(int64(1), r.Sent)
	assert.Equal(int64(0), r.Failed)
	assert.Equal(int64(2), r.Total())
	assert.False(r.HasFailures())
	assert.Nil(r.Err())

	assert.Len(r.Batches, 1)
	assert.Equal(2, r.Batches[0].Index)
	assert.Equal(6, r.Batches[0].Bytes)
	assert.True(r.Batches[0].Sent())

	assert.Equal(time.Duration(70)*time.Minute, r.MaxMsgLatency)
	assert.Equal(time.Duration(50)*time.Minute, r.MinMsgLatency)
	assert.Equal(time.Duration(60)*time.Minute, r.AvgMsgLatency)
}

func TestNewBatchFailedResult(t *testing.T) {
	assert := assert.New(t)

	batch := &Batch{Index: 1, Payloads: NewPayloadsFromStrings([]string{"a", "b"})}
	err := &TransportError{SinkID: "test", Err: errors.New("boom")}

	r := NewBatchFailedResult(batch, err)
	assert.Equal(int64(0), r.Accepted)
	assert.Equal(int64(0), r.Sent)
	assert.Equal(int64(2), r.Failed)
	assert.Equal(int64(1), r.BatchesFailed)
	assert.False(r.Batches[0].Sent())
	assert.Len(r.Failures, 1)
	assert.Equal(KindTransportError, r.Failures[0].Kind)
	assert.Equal(1, r.Failures[0].BatchIndex)
	assert.Equal(int64(2), r.FailedOfKind(KindTransportError))
	assert.True(r.HasFailures())
	assert.Contains(r.Err().Error(), "failed to publish to test: boom")
}

func TestNewOversizedResult(t *testing.T) {
	assert := assert.New(t)

	r := NewOversizedResult(NewPayloadsFromStrings([]string{"abcdef", "ghijkl"}), 5)
	assert.Equal(int64(2), r.Failed)
	assert.Len(r.Failures, 2)
	assert.Equal(int64(2), r.FailedOfKind(KindPayloadTooLarge))
	assert.Equal(-1, r.Failures[0].BatchIndex)
	assert.Equal("payload of 6 bytes exceeds the batch limit of 5 bytes", r.Failures[0].Err.Error())
}

func TestRelayResult_Append(t *testing.T) {
	assert := assert.New(t)

	timeNow := time.Now().UTC()

	batch1 := &Batch{Index: 0, Payloads: []*Payload{
		{Data: []byte("a"), TimeCreated: timeNow.Add(time.Duration(-10) * time.Minute)},
	}}
	batch2 := &Batch{Index: 1, Payloads: []*Payload{
		{Data: []byte("b"), TimeCreated: timeNow.Add(time.Duration(-30) * time.Minute)},
		{Data: []byte("c"), TimeCreated: timeNow.Add(time.Duration(-30) * time.Minute)},
		{Data: []byte("d"), TimeCreated: timeNow.Add(time.Duration(-30) * time.Minute)},
	}}
	batch3 := &Batch{Index: 2, Payloads: NewPayloadsFromStrings([]string{"e"})}

	r := &RelayResult{}
	r = r.Append(NewBatchSentResultWithTime(batch1, timeNow))
	r = r.Append(NewBatchFailedResult(batch3, errors.New("failure")))
	r = r.Append(NewBatchSentResultWithTime(batch2, timeNow))
	r = r.Append(nil)

	assert.Equal(int64(4), r.Accepted)
	assert.Equal(int64(2), r.Sent)
	assert.Equal(int64(1), r.Failed)
	assert.Equal(int64(1), r.BatchesFailed)
	assert.Equal(int64(5), r.Total())
	assert.Len(r.Batches, 3)
	assert.Len(r.Failures, 1)

	assert.Equal(time.Duration(30)*time.Minute, r.MaxMsgLatency)
	assert.Equal(time.Duration(10)*time.Minute, r.MinMsgLatency)
	assert.Equal(time.Duration(25)*time.Minute, r.AvgMsgLatency)

	assert.Equal("Accepted:4,Failed:1,BatchesSent:2,BatchesFailed:1,Oversized:0,MaxMsgLatency:30m0s", r.String())
}

func TestRelayResult_AppendDoesNotMutate(t *testing.T) {
	assert := assert.New(t)

	base := &RelayResult{}
	extended := base.Append(NewOversizedResult(NewPayloadsFromStrings([]string{"abc"}), 1))

	assert.Equal(int64(0), base.Failed)
	assert.Nil(base.Failures)
	assert.Equal(int64(1), extended.Failed)
}
