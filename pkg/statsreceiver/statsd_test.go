// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package statsreceiver

import (
	"errors"
	"net"
	"testing"
	"time"

	statsd "github.com/smira/go-statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

func TestStatsDReceiver_Send(t *testing.T) {
	assert := assert.New(t)

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.Nil(t, err)
	defer conn.Close()

	receiver, err := NewStatsDReceiverWithTags(map[string]string{"host": "test", "env": "local"})(&StatsDConfig{
		Address: conn.LocalAddr().String(),
		Prefix:  "event-relay.",
		Tags:    `{"env": "ci"}`,
	})
	require.Nil(t, err)

	batch := &models.Batch{Payloads: models.NewPayloadsFromStrings([]string{"a", "b"})}
	result := models.NewBatchSentResult(batch).
		Append(models.NewOversizedResult(models.NewPayloadsFromStrings([]string{"huge"}), 2)).
		Append(models.NewBatchFailedResult(&models.Batch{Index: 1, Payloads: models.NewPayloadsFromStrings([]string{"c"})}, errors.New("boom")))

	receiver.Send(result)
	receiver.Close()

	buf := make([]byte, 4096)
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.Nil(t, err)

	packet := string(buf[:n])
	assert.Contains(packet, "event-relay.payload_accepted:2|c")
	assert.Contains(packet, "event-relay.payload_failed:2|c")
	assert.Contains(packet, "event-relay.payload_oversized:1|c")
	assert.Contains(packet, "event-relay.batch_sent:1|c")
	assert.Contains(packet, "event-relay.batch_failed:1|c")
	assert.Contains(packet, "env:ci")
	assert.Contains(packet, "host:test")
	assert.NotContains(packet, "env:local")
	assert.NotContains(packet, "event-relay..")
}

func TestStatsDReceiver_InvalidTags(t *testing.T) {
	assert := assert.New(t)

	receiver, err := NewStatsDReceiver(&StatsDConfig{Address: "127.0.0.1:8125", Tags: "not json"}, nil)
	assert.Nil(receiver)
	assert.Contains(err.Error(), "Failed to parse STATS_RECEIVER_STATSD_TAGS as a JSON object")
}

func TestStatsDTags(t *testing.T) {
	assert := assert.New(t)

	tags, err := statsDTags(`{"team": "data", "host": "configured"}`, map[string]string{"host": "instance", "pid": "42"})
	require.Nil(t, err)

	var names []string
	for _, tag := range tags {
		names = append(names, string(tag.Append(nil, statsd.TagFormatDatadog)))
	}
	assert.Equal([]string{"host:configured", "pid:42", "team:data"}, names)

	empty, err := statsDTags("", nil)
	assert.Nil(err)
	assert.Empty(empty)
}

func TestStatsDReceiverAdapter(t *testing.T) {
	assert := assert.New(t)

	adapter := AdaptStatsDReceiverFunc(NewStatsDReceiverWithTags(nil))

	defaults, err := adapter.ProvideDefault()
	assert.Nil(err)
	cfg := defaults.(*StatsDConfig)
	assert.Equal("snowplow.event-relay", cfg.Prefix)
	assert.Equal(1400, cfg.MaxPacketSize)

	_, err = adapter.Create("nope")
	assert.Equal("invalid input, expected StatsDConfig", err.Error())

	cfg.Address = "127.0.0.1:8125"
	receiver, err := adapter.Create(cfg)
	assert.Nil(err)
	assert.IsType(&StatsDReceiver{}, receiver)
	receiver.(*StatsDReceiver).Close()
}
