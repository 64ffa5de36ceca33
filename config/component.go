// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package config

import (
	"fmt"

	"github.com/snowplow-devops/event-relay/pkg/sink"
	"github.com/snowplow-devops/event-relay/pkg/sink/sinkiface"
)

// ComponentConfigurable provides the structure a component's configuration
// is decoded onto, pre-filled with its defaults.
type ComponentConfigurable interface {
	ProvideDefault() (interface{}, error)
}

// ComponentCreator builds a component from its decoded configuration.
type ComponentCreator interface {
	Create(i interface{}) (interface{}, error)
}

// Pluggable is implemented by every sink and stats receiver adapter.
type Pluggable interface {
	ComponentConfigurable
	ComponentCreator
}

// DecodingHandler decodes the configuration of a ComponentConfigurable.
type DecodingHandler func(c ComponentConfigurable, d Decoder) (interface{}, error)

// WithDecoderOptions returns a DecodingHandler closed over some DecoderOptions.
func WithDecoderOptions(opts *DecoderOptions) DecodingHandler {
	return func(c ComponentConfigurable, d Decoder) (interface{}, error) {
		return Configure(c, d, opts)
	}
}

// Configure returns the defaults of c overlaid with whatever d decodes.
func Configure(c ComponentConfigurable, d Decoder, opts *DecoderOptions) (interface{}, error) {
	target, err := c.ProvideDefault()
	if err != nil {
		return nil, err
	}

	if err = d.Decode(opts, target); err != nil {
		return nil, err
	}

	return target, nil
}

// SinkNames lists the sinks that can be configured, in the order they are
// reported in errors.
var SinkNames = []string{"eventhub", "kafka", "kinesis", "sqs", "pubsub", "http", "stdout"}

// sinkPlug returns the pluggable adapter for the named sink.
func sinkPlug(name string) (Pluggable, error) {
	switch name {
	case "eventhub":
		return sink.AdaptEventHubSinkFunc(sink.NewEventHubSink), nil
	case "kafka":
		return sink.AdaptKafkaSinkFunc(sink.NewKafkaSink), nil
	case "kinesis":
		return sink.AdaptKinesisSinkFunc(sink.NewKinesisSink), nil
	case "sqs":
		return sink.AdaptSQSSinkFunc(sink.NewSQSSink), nil
	case "pubsub":
		return sink.AdaptPubSubSinkFunc(sink.NewPubSubSink), nil
	case "http":
		return sink.AdaptHTTPSinkFunc(sink.NewHTTPSink), nil
	case "stdout":
		return sink.AdaptStdoutSinkFunc(sink.NewStdoutSink), nil
	default:
		return nil, fmt.Errorf("Invalid sink found; expected one of 'eventhub, kafka, kinesis, sqs, pubsub, http, stdout' and got '%s'", name)
	}
}

// asSink narrows a created component to a Sink.
func asSink(name string, component interface{}) (sinkiface.Sink, error) {
	if s, ok := component.(sinkiface.Sink); ok {
		return s, nil
	}
	return nil, fmt.Errorf("could not interpret sink configuration for %q", name)
}
