// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sink

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/common"
	"github.com/snowplow-devops/event-relay/pkg/models"
)

const (
	// API Documentation: https://docs.aws.amazon.com/kinesis/latest/APIReference/API_PutRecords.html

	// Limited to 500 messages in a single request
	kinesisPutRecordsChunkSize = 500
	// Each request can be a maximum of 5 MiB in size total
	kinesisPutRecordsRequestByteLimit = 5242880
)

// KinesisConfig configures the destination stream
type KinesisConfig struct {
	StreamName        string `hcl:"stream_name,optional" env:"SINK_KINESIS_STREAM_NAME"`
	Region            string `hcl:"region,optional" env:"SINK_KINESIS_REGION"`
	RoleARN           string `hcl:"role_arn,optional" env:"SINK_KINESIS_ROLE_ARN"`
	CustomAWSEndpoint string `hcl:"custom_aws_endpoint,optional" env:"SINK_CUSTOM_AWS_ENDPOINT"`
}

// KinesisSink holds a new client for writing batches to kinesis
type KinesisSink struct {
	client     kinesisiface.KinesisAPI
	streamName string
	region     string

	log *log.Entry
}

// NewKinesisSink creates a new client for writing batches to kinesis
func NewKinesisSink(cfg *KinesisConfig) (*KinesisSink, error) {
	if cfg.StreamName == "" || cfg.Region == "" {
		return nil, &models.ConfigurationMissingError{
			Component: "Kinesis",
			Fields:    []string{"SINK_KINESIS_STREAM_NAME", "SINK_KINESIS_REGION"},
		}
	}

	awsSession, awsConfig := common.GetAWSSession(cfg.Region, cfg.RoleARN, cfg.CustomAWSEndpoint)
	var kinesisClient *kinesis.Kinesis
	if awsConfig != nil {
		kinesisClient = kinesis.New(awsSession, awsConfig)
	} else {
		kinesisClient = kinesis.New(awsSession)
	}

	return newKinesisSinkWithInterfaces(kinesisClient, cfg.Region, cfg.StreamName), nil
}

// newKinesisSinkWithInterfaces allows you to provide a Kinesis client directly to allow
// for mocking and localstack usage
func newKinesisSinkWithInterfaces(client kinesisiface.KinesisAPI, region string, streamName string) *KinesisSink {
	return &KinesisSink{
		client:     client,
		streamName: streamName,
		region:     region,
		log:        log.WithFields(log.Fields{"sink": "kinesis", "cloud": "AWS", "region": region, "stream": streamName}),
	}
}

// The KinesisSinkAdapter type is an adapter for functions to be used as
// pluggable components for Kinesis sink. Implements the Pluggable interface.
type KinesisSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f KinesisSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f KinesisSinkAdapter) ProvideDefault() (interface{}, error) {
	// Provide defaults if any
	cfg := &KinesisConfig{}

	return cfg, nil
}

// AdaptKinesisSinkFunc returns a KinesisSinkAdapter.
func AdaptKinesisSinkFunc(f func(c *KinesisConfig) (*KinesisSink, error)) KinesisSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*KinesisConfig)
		if !ok {
			return nil, errors.New("invalid input, expected KinesisConfig")
		}

		return f(cfg)
	}
}

// Open does not do anything for this sink
func (ks *KinesisSink) Open() error {
	return nil
}

// Publish writes the batch with a single PutRecords call. A partially
// failed request fails the whole batch.
func (ks *KinesisSink) Publish(ctx context.Context, batch *models.Batch) error {
	ks.log.Debugf("Writing batch %d of %d payloads to stream ...", batch.Index, batch.Len())

	entries := make([]*kinesis.PutRecordsRequestEntry, batch.Len())
	for i, p := range batch.Payloads {
		entries[i] = &kinesis.PutRecordsRequestEntry{
			Data:         p.Data,
			PartitionKey: aws.String(p.PartitionKey),
		}
	}

	res, err := ks.client.PutRecordsWithContext(ctx, &kinesis.PutRecordsInput{
		Records:    entries,
		StreamName: aws.String(ks.streamName),
	})
	if err != nil {
		return errors.Wrap(err, "Failed to send batch to Kinesis stream")
	}

	if res.FailedRecordCount != nil && *res.FailedRecordCount > int64(0) {
		// We can have 1 or more error, so wrap em up and return them:
		var kinesisErrs error
		for _, record := range res.Records {
			if record.ErrorMessage != nil {
				kinesisErrs = multierror.Append(kinesisErrs, errors.New(*record.ErrorMessage))
			}
		}
		if kinesisErrs == nil {
			kinesisErrs = fmt.Errorf("%d records were rejected", *res.FailedRecordCount)
		}

		return errors.Wrap(kinesisErrs, "Failed to write all payloads in batch to Kinesis stream")
	}

	ks.log.Debugf("Successfully wrote batch %d of %d payloads", batch.Index, batch.Len())
	return nil
}

// Close does not do anything for this sink
func (ks *KinesisSink) Close() {}

// MaximumBatchMessages returns the PutRecords entry limit
func (ks *KinesisSink) MaximumBatchMessages() int {
	return kinesisPutRecordsChunkSize
}

// MaximumBatchBytes returns the PutRecords request size limit
func (ks *KinesisSink) MaximumBatchBytes() int {
	return kinesisPutRecordsRequestByteLimit
}

// GetID returns the identifier for this sink
func (ks *KinesisSink) GetID() string {
	return fmt.Sprintf("arn:aws:kinesis:%s::stream/%s", ks.region, ks.streamName)
}
