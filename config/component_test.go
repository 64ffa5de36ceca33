// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowplow-devops/event-relay/pkg/sink"
	"github.com/snowplow-devops/event-relay/pkg/statsreceiver"
)

// decodedConfig returns the decoded configuration instead of building the component
type decodedConfig struct {
	Pluggable
}

func (d decodedConfig) Create(i interface{}) (interface{}, error) {
	return i, nil
}

func mustSinkPlug(t *testing.T, name string) Pluggable {
	plug, err := sinkPlug(name)
	require.Nil(t, err)
	return plug
}

func TestCreateSinkComponentHCL(t *testing.T) {
	testCases := []struct {
		File     string
		Name     string
		Expected interface{}
	}{
		{
			File: "sink-kafka.hcl",
			Name: "kafka",
			Expected: &sink.KafkaConfig{
				Brokers:       "localhost:9092",
				TopicName:     "testTopic",
				MaxRetries:    2,
				ByteLimit:     1000000,
				Compress:      true,
				SASLAlgorithm: "sha512",
			},
		},
		{
			File: "sink-eventhub.hcl",
			Name: "eventhub",
			Expected: &sink.EventHubConfig{
				EventHubNamespace:       "testNamespace",
				EventHubName:            "testName",
				MaxAutoRetries:          1,
				ContextTimeoutInSeconds: 30,
				BatchByteLimit:          1048576,
				SetEHPartitionKey:       true,
			},
		},
		{
			File: "sink-http.hcl",
			Name: "http",
			Expected: &sink.HTTPConfig{
				URL:                     "http://localhost:8080/ingest",
				RequestTimeoutInSeconds: 5,
				Headers:                 `{"X-Api-Key": "abc"}`,
			},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.File, func(t *testing.T) {
			assert := assert.New(t)
			t.Setenv(ConfigFileEnvVar, configFile(tt.File))

			c, err := NewConfig()
			require.Nil(t, err)
			assert.Equal(tt.Name, c.Data.Sink.Use.Name)

			result, err := c.CreateComponent(
				decodedConfig{mustSinkPlug(t, tt.Name)},
				&DecoderOptions{Input: c.Data.Sink.Use.Body},
			)
			assert.Nil(err)
			assert.Equal(tt.Expected, result)
		})
	}
}

func TestCreateSinkComponentEnv(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("SINK_NAME", "sqs")
	t.Setenv("SINK_SQS_QUEUE_NAME", "testQueue")
	t.Setenv("SINK_SQS_REGION", "eu-test-1")
	t.Setenv("SINK_SQS_ROLE_ARN", "xxx-test-role-arn")

	c, err := NewConfig()
	require.Nil(t, err)

	result, err := c.CreateComponent(decodedConfig{mustSinkPlug(t, "sqs")}, &DecoderOptions{})
	assert.Nil(err)
	assert.Equal(&sink.SQSConfig{
		QueueName: "testQueue",
		Region:    "eu-test-1",
		RoleARN:   "xxx-test-role-arn",
	}, result)
}

func TestCreateStatsReceiverComponentEnv(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("STATS_RECEIVER_STATSD_ADDRESS", "127.0.0.1:8125")

	c, err := NewConfig()
	require.Nil(t, err)

	plug := statsreceiver.AdaptStatsDReceiverFunc(statsreceiver.NewStatsDReceiverWithTags(nil))
	result, err := c.CreateComponent(decodedConfig{plug}, &DecoderOptions{})
	assert.Nil(err)
	assert.Equal(&statsreceiver.StatsDConfig{
		Address:       "127.0.0.1:8125",
		Prefix:        "snowplow.event-relay",
		Tags:          "{}",
		MaxPacketSize: 1400,
	}, result)
}

func TestConfigure_ProvideDefaultError(t *testing.T) {
	_, err := Configure(failingDefaults{}, &envDecoder{}, &DecoderOptions{})
	assert.EqualError(t, err, "no defaults")
}

type failingDefaults struct{}

func (failingDefaults) ProvideDefault() (interface{}, error) {
	return nil, errors.New("no defaults")
}

func TestSinkPlug_AllNames(t *testing.T) {
	for _, name := range SinkNames {
		plug, err := sinkPlug(name)
		assert.Nil(t, err, name)
		assert.NotNil(t, plug, name)
	}
}

func TestAsSink_WrongType(t *testing.T) {
	s, err := asSink("stdout", "not a sink")
	assert.Nil(t, s)
	assert.EqualError(t, err, `could not interpret sink configuration for "stdout"`)
}
