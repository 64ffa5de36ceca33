// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sink

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

func TestStdoutSink_DataOnly(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	s := newStdoutSinkWithInterfaces(&buf, true)
	assert.Equal("stdout", s.GetID())
	assert.Equal(0, s.MaximumBatchBytes())

	assert.Nil(s.Open())
	defer s.Close()

	err := s.Publish(context.Background(), &models.Batch{Payloads: models.NewPayloadsFromStrings([]string{"Hello", "World"})})
	assert.Nil(err)
	assert.Equal("Hello\nWorld\n", buf.String())
}

func TestStdoutSink_Full(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	s := newStdoutSinkWithInterfaces(&buf, false)

	payload := models.NewPayload([]byte("Hello"))
	err := s.Publish(context.Background(), &models.Batch{Index: 2, Payloads: []*models.Payload{payload}})
	assert.Nil(err)
	assert.Contains(buf.String(), "Batch:2,PartitionKey:"+payload.PartitionKey)
	assert.Contains(buf.String(), "Data:Hello")
}
