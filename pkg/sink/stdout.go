// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

// StdoutConfig configures the stdout sink
type StdoutConfig struct {
	DataOnlyOutput bool `hcl:"data_only_output,optional" env:"SINK_STDOUT_DATA_ONLY"`
}

// StdoutSink writes every payload of a batch to stdout
type StdoutSink struct {
	output         io.Writer
	dataOnlyOutput bool

	log *log.Entry
}

// NewStdoutSink creates a new sink writing to stdout
func NewStdoutSink(cfg *StdoutConfig) (*StdoutSink, error) {
	return newStdoutSinkWithInterfaces(os.Stdout, cfg.DataOnlyOutput), nil
}

// newStdoutSinkWithInterfaces allows the output to be captured in tests
func newStdoutSinkWithInterfaces(writer io.Writer, dataOnlyOutput bool) *StdoutSink {
	return &StdoutSink{
		output:         writer,
		dataOnlyOutput: dataOnlyOutput,
		log:            log.WithFields(log.Fields{"sink": "stdout"}),
	}
}

// The StdoutSinkAdapter type is an adapter for functions to be used as
// pluggable components for Stdout sink. It implements the Pluggable interface.
type StdoutSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f StdoutSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f StdoutSinkAdapter) ProvideDefault() (interface{}, error) {
	return &StdoutConfig{}, nil
}

// AdaptStdoutSinkFunc returns a StdoutSinkAdapter.
func AdaptStdoutSinkFunc(f func(c *StdoutConfig) (*StdoutSink, error)) StdoutSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*StdoutConfig)
		if !ok {
			return nil, errors.New("invalid input, expected StdoutConfig")
		}

		return f(cfg)
	}
}

// Open does not do anything for this sink
func (st *StdoutSink) Open() error {
	return nil
}

// Publish writes one line per payload
func (st *StdoutSink) Publish(ctx context.Context, batch *models.Batch) error {
	for _, p := range batch.Payloads {
		var line string
		if st.dataOnlyOutput {
			line = string(p.Data)
		} else {
			line = fmt.Sprintf("Batch:%d,%s", batch.Index, p.String())
		}
		if _, err := fmt.Fprintln(st.output, line); err != nil {
			return errors.Wrap(err, "Failed to write to stdout")
		}
	}
	return nil
}

// Close does not do anything for this sink
func (st *StdoutSink) Close() {}

// MaximumBatchMessages returns 0 as stdout has no request limits
func (st *StdoutSink) MaximumBatchMessages() int {
	return 0
}

// MaximumBatchBytes returns 0 as stdout has no request limits
func (st *StdoutSink) MaximumBatchBytes() int {
	return 0
}

// GetID returns the identifier for this sink
func (st *StdoutSink) GetID() string {
	return "stdout"
}
