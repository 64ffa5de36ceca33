// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package statsreceiver

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	statsd "github.com/smira/go-statsd"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

const (
	defaultStatsDPrefix        = "snowplow.event-relay"
	defaultStatsDMaxPacketSize = 1400

	statsDReconnectInterval = time.Minute
)

// StatsDConfig configures the StatsD stats receiver
type StatsDConfig struct {
	Address       string `hcl:"address,optional" env:"STATS_RECEIVER_STATSD_ADDRESS"`
	Prefix        string `hcl:"prefix,optional" env:"STATS_RECEIVER_STATSD_PREFIX"`
	Tags          string `hcl:"tags,optional" env:"STATS_RECEIVER_STATSD_TAGS"`
	MaxPacketSize int    `hcl:"max_packet_size,optional" env:"STATS_RECEIVER_STATSD_MAX_PACKET_SIZE"`
}

// StatsDReceiver reports relay outcomes as StatsD counters and timings
type StatsDReceiver struct {
	client *statsd.Client
}

// NewStatsDReceiver builds a receiver for cfg.Address. Every metric carries
// instanceTags together with the JSON object in cfg.Tags; on a shared key the
// configured value wins.
func NewStatsDReceiver(cfg *StatsDConfig, instanceTags map[string]string) (*StatsDReceiver, error) {
	tags, err := statsDTags(cfg.Tags, instanceTags)
	if err != nil {
		return nil, err
	}

	packetSize := cfg.MaxPacketSize
	if packetSize <= 0 {
		packetSize = defaultStatsDMaxPacketSize
	}

	opts := []statsd.Option{
		statsd.MaxPacketSize(packetSize),
		statsd.TagStyle(statsd.TagFormatDatadog),
		statsd.DefaultTags(tags...),
		statsd.ReconnectInterval(statsDReconnectInterval),
	}
	if prefix := strings.TrimSuffix(cfg.Prefix, "."); prefix != "" {
		opts = append(opts, statsd.MetricPrefix(prefix+"."))
	}

	return &StatsDReceiver{client: statsd.NewClient(cfg.Address, opts...)}, nil
}

// statsDTags merges the configured tags over the instance tags, ordered by key
func statsDTags(raw string, instanceTags map[string]string) ([]statsd.Tag, error) {
	merged := make(map[string]string, len(instanceTags))
	for k, v := range instanceTags {
		merged[k] = v
	}

	if strings.TrimSpace(raw) != "" {
		configured := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &configured); err != nil {
			return nil, errors.Wrap(err, "Failed to parse STATS_RECEIVER_STATSD_TAGS as a JSON object")
		}
		for k, v := range configured {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]statsd.Tag, len(keys))
	for i, k := range keys {
		tags[i] = statsd.StringTag(k, merged[k])
	}
	return tags, nil
}

// NewStatsDReceiverWithTags binds the instance tags so the receiver can be
// built from a decoded StatsDConfig
func NewStatsDReceiverWithTags(instanceTags map[string]string) func(c *StatsDConfig) (*StatsDReceiver, error) {
	return func(c *StatsDConfig) (*StatsDReceiver, error) {
		return NewStatsDReceiver(c, instanceTags)
	}
}

// StatsDReceiverAdapter lets the StatsD receiver be created as a pluggable component
type StatsDReceiverAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f StatsDReceiverAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f StatsDReceiverAdapter) ProvideDefault() (interface{}, error) {
	return &StatsDConfig{
		Prefix:        defaultStatsDPrefix,
		Tags:          "{}",
		MaxPacketSize: defaultStatsDMaxPacketSize,
	}, nil
}

// AdaptStatsDReceiverFunc returns a StatsDReceiverAdapter.
func AdaptStatsDReceiverFunc(f func(c *StatsDConfig) (*StatsDReceiver, error)) StatsDReceiverAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*StatsDConfig)
		if !ok {
			return nil, errors.New("invalid input, expected StatsDConfig")
		}

		return f(cfg)
	}
}

// Send emits the outcome of a single relay to the receiver
func (s *StatsDReceiver) Send(r *models.RelayResult) {
	s.client.Incr("payload_accepted", r.Accepted)
	s.client.Incr("payload_failed", r.Failed)
	s.client.Incr("payload_oversized", r.FailedOfKind(models.KindPayloadTooLarge))
	s.client.Incr("batch_sent", r.Sent)
	s.client.Incr("batch_failed", r.BatchesFailed)
	if r.Accepted > 0 {
		s.client.PrecisionTiming("relay_latency_max", r.MaxMsgLatency)
		s.client.PrecisionTiming("relay_latency_avg", r.AvgMsgLatency)
	}
}

// Close flushes buffered metrics and closes the connection
func (s *StatsDReceiver) Close() {
	s.client.Close()
}
