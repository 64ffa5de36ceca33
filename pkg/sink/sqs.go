// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/common"
	"github.com/snowplow-devops/event-relay/pkg/models"
)

const (
	// API Documentation: https://docs.aws.amazon.com/AWSSimpleQueueService/latest/SQSDeveloperGuide/quotas-messages.html

	// Limited to 10 messages in a single request
	sqsSendMessageBatchChunkSize = 10
	// Each request can be a maximum of 256 KB in size total
	sqsSendMessageBatchByteLimit = 262144
)

// SQSConfig configures the destination queue
type SQSConfig struct {
	QueueName         string `hcl:"queue_name,optional" env:"SINK_SQS_QUEUE_NAME"`
	Region            string `hcl:"region,optional" env:"SINK_SQS_REGION"`
	RoleARN           string `hcl:"role_arn,optional" env:"SINK_SQS_ROLE_ARN"`
	CustomAWSEndpoint string `hcl:"custom_aws_endpoint,optional" env:"SINK_CUSTOM_AWS_ENDPOINT"`
}

// SQSSink holds a new client for writing batches to sqs
type SQSSink struct {
	client    sqsiface.SQSAPI
	queueURL  string
	queueName string
	region    string

	log *log.Entry
}

// NewSQSSink creates a new client for writing batches to sqs
func NewSQSSink(cfg *SQSConfig) (*SQSSink, error) {
	if cfg.QueueName == "" || cfg.Region == "" {
		return nil, &models.ConfigurationMissingError{
			Component: "SQS",
			Fields:    []string{"SINK_SQS_QUEUE_NAME", "SINK_SQS_REGION"},
		}
	}

	awsSession, awsConfig := common.GetAWSSession(cfg.Region, cfg.RoleARN, cfg.CustomAWSEndpoint)
	var sqsClient *sqs.SQS
	if awsConfig != nil {
		sqsClient = sqs.New(awsSession, awsConfig)
	} else {
		sqsClient = sqs.New(awsSession)
	}

	return newSQSSinkWithInterfaces(sqsClient, cfg.Region, cfg.QueueName), nil
}

// newSQSSinkWithInterfaces allows you to provide an SQS client directly to allow
// for mocking and localstack usage
func newSQSSinkWithInterfaces(client sqsiface.SQSAPI, region string, queueName string) *SQSSink {
	return &SQSSink{
		client:    client,
		queueName: queueName,
		region:    region,
		log:       log.WithFields(log.Fields{"sink": "sqs", "cloud": "AWS", "region": region, "queue": queueName}),
	}
}

// The SQSSinkAdapter type is an adapter for functions to be used as
// pluggable components for SQS sink. Implements the Pluggable interface.
type SQSSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f SQSSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f SQSSinkAdapter) ProvideDefault() (interface{}, error) {
	// Provide defaults if any
	cfg := &SQSConfig{}

	return cfg, nil
}

// AdaptSQSSinkFunc returns an SQSSinkAdapter.
func AdaptSQSSinkFunc(f func(c *SQSConfig) (*SQSSink, error)) SQSSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*SQSConfig)
		if !ok {
			return nil, errors.New("invalid input, expected SQSConfig")
		}

		return f(cfg)
	}
}

// Open fetches the queue URL for this sink
func (st *SQSSink) Open() error {
	if st.queueURL != "" {
		return nil
	}

	urlResult, err := st.client.GetQueueUrl(&sqs.GetQueueUrlInput{
		QueueName: aws.String(st.queueName),
	})
	if err != nil {
		return errors.Wrap(err, "Failed to get SQS queue URL")
	}

	st.queueURL = *urlResult.QueueUrl
	return nil
}

// Publish sends the batch with a single SendMessageBatch call; any failed
// entry fails the batch
func (st *SQSSink) Publish(ctx context.Context, batch *models.Batch) error {
	if st.queueURL == "" {
		return errors.New("SQS queue URL has not been resolved, must call Open() before attempting to publish")
	}

	st.log.Debugf("Writing batch %d of %d payloads to queue ...", batch.Index, batch.Len())

	entries := make([]*sqs.SendMessageBatchRequestEntry, batch.Len())
	for i, p := range batch.Payloads {
		entries[i] = &sqs.SendMessageBatchRequestEntry{
			DelaySeconds: aws.Int64(0),
			MessageBody:  aws.String(string(p.Data)),
			Id:           aws.String(strconv.Itoa(i)),
		}
	}

	res, err := st.client.SendMessageBatchWithContext(ctx, &sqs.SendMessageBatchInput{
		Entries:  entries,
		QueueUrl: aws.String(st.queueURL),
	})
	if err != nil {
		return errors.Wrap(err, "Failed to send batch to SQS queue")
	}

	var errResult error
	for _, f := range res.Failed {
		errResult = multierror.Append(errResult, fmt.Errorf("%s: %s", aws.StringValue(f.Code), aws.StringValue(f.Message)))
	}
	if errResult != nil {
		return errors.Wrap(errResult, "Failed to write all payloads in batch to SQS queue")
	}

	st.log.Debugf("Successfully wrote batch %d of %d payloads", batch.Index, batch.Len())
	return nil
}

// Close resets the queue URL value
func (st *SQSSink) Close() {
	st.queueURL = ""
}

// MaximumBatchMessages returns the SendMessageBatch entry limit
func (st *SQSSink) MaximumBatchMessages() int {
	return sqsSendMessageBatchChunkSize
}

// MaximumBatchBytes returns the SendMessageBatch request size limit
func (st *SQSSink) MaximumBatchBytes() int {
	return sqsSendMessageBatchByteLimit
}

// GetID returns the identifier for this sink
func (st *SQSSink) GetID() string {
	return fmt.Sprintf("arn:aws:sqs:%s::%s", st.region, st.queueName)
}
