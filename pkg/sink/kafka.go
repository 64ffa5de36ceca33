// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/common"
	"github.com/snowplow-devops/event-relay/pkg/models"
)

// kafkaRecordOverheadBytes covers the record framing and partition key sarama
// counts against Producer.MaxMessageBytes
const kafkaRecordOverheadBytes = 256

// KafkaConfig contains configurable options for the kafka sink
type KafkaConfig struct {
	Brokers        string `hcl:"brokers,optional" env:"SINK_KAFKA_BROKERS"`
	TopicName      string `hcl:"topic_name,optional" env:"SINK_KAFKA_TOPIC_NAME"`
	TargetVersion  string `hcl:"target_version,optional" env:"SINK_KAFKA_TARGET_VERSION"`
	MaxRetries     int    `hcl:"max_retries,optional" env:"SINK_KAFKA_MAX_RETRIES"`
	ByteLimit      int    `hcl:"byte_limit,optional" env:"SINK_KAFKA_BYTE_LIMIT"`
	Compress       bool   `hcl:"compress,optional" env:"SINK_KAFKA_COMPRESS"`
	WaitForAll     bool   `hcl:"wait_for_all,optional" env:"SINK_KAFKA_WAIT_FOR_ALL"`
	Idempotent     bool   `hcl:"idempotent,optional" env:"SINK_KAFKA_IDEMPOTENT"`
	EnableSASL     bool   `hcl:"enable_sasl,optional" env:"SINK_KAFKA_ENABLE_SASL"`
	SASLUsername   string `hcl:"sasl_username,optional" env:"SINK_KAFKA_SASL_USERNAME"`
	SASLPassword   string `hcl:"sasl_password,optional" env:"SINK_KAFKA_SASL_PASSWORD"`
	SASLAlgorithm  string `hcl:"sasl_algorithm,optional" env:"SINK_KAFKA_SASL_ALGORITHM"`
	CertFile       string `hcl:"cert_file,optional" env:"SINK_KAFKA_TLS_CERT_FILE"`
	KeyFile        string `hcl:"key_file,optional" env:"SINK_KAFKA_TLS_KEY_FILE"`
	CaFile         string `hcl:"ca_file,optional" env:"SINK_KAFKA_TLS_CA_FILE"`
	SkipVerifyTLS  bool   `hcl:"skip_verify_tls,optional" env:"SINK_KAFKA_TLS_SKIP_VERIFY_TLS"`
	ForceSyncFlush bool   `hcl:"force_sync_flush,optional" env:"SINK_KAFKA_FORCE_SYNC_FLUSH"`
}

// KafkaSink holds a new client for writing batches to Apache Kafka
type KafkaSink struct {
	newProducer func() (sarama.SyncProducer, error)
	producer    sarama.SyncProducer
	topicName   string
	brokers     string

	messageByteLimit int

	log *log.Entry
}

// NewKafkaSink creates a new sink for writing batches to Apache Kafka
func NewKafkaSink(cfg *KafkaConfig) (*KafkaSink, error) {
	if cfg.Brokers == "" || cfg.TopicName == "" {
		return nil, &models.ConfigurationMissingError{
			Component: "Kafka",
			Fields:    []string{"SINK_KAFKA_BROKERS", "SINK_KAFKA_TOPIC_NAME"},
		}
	}

	kafkaVersion, err := common.GetKafkaVersion(cfg.TargetVersion)
	if err != nil {
		return nil, err
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = "snowplow_event_relay"
	saramaConfig.Version = kafkaVersion
	saramaConfig.Producer.Retry.Max = cfg.MaxRetries
	saramaConfig.Producer.MaxMessageBytes = cfg.ByteLimit

	// Must be enabled for the SyncProducer
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	if cfg.WaitForAll {
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	}

	if cfg.Idempotent {
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
		saramaConfig.Producer.Idempotent = true
		saramaConfig.Net.MaxOpenRequests = 1
	}

	if cfg.Compress {
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	}

	if cfg.ForceSyncFlush {
		saramaConfig.Producer.Flush.Messages = 1
	}

	if cfg.EnableSASL {
		if err := common.ConfigureSASL(saramaConfig, cfg.SASLAlgorithm, cfg.SASLUsername, cfg.SASLPassword); err != nil {
			return nil, err
		}
	}

	tlsConfig, err := common.CreateTLSConfiguration(cfg.CertFile, cfg.KeyFile, cfg.CaFile, cfg.SkipVerifyTLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		saramaConfig.Net.TLS.Config = tlsConfig
		saramaConfig.Net.TLS.Enable = true
	}

	brokers := strings.Split(cfg.Brokers, ",")
	newProducer := func() (sarama.SyncProducer, error) {
		return sarama.NewSyncProducer(brokers, saramaConfig)
	}

	return newKafkaSinkWithInterfaces(newProducer, cfg), nil
}

// newKafkaSinkWithInterfaces allows for a mocked producer to be supplied
func newKafkaSinkWithInterfaces(newProducer func() (sarama.SyncProducer, error), cfg *KafkaConfig) *KafkaSink {
	return &KafkaSink{
		newProducer: newProducer,
		brokers:     cfg.Brokers,
		topicName:   cfg.TopicName,

		messageByteLimit: cfg.ByteLimit,

		log: log.WithFields(log.Fields{"sink": "kafka", "brokers": cfg.Brokers, "topic": cfg.TopicName}),
	}
}

// The KafkaSinkAdapter type is an adapter for functions to be used as
// pluggable components for Kafka sink. It implements the Pluggable interface.
type KafkaSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f KafkaSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f KafkaSinkAdapter) ProvideDefault() (interface{}, error) {
	// Provide defaults for the optional parameters
	// whose default is not their zero value.
	cfg := &KafkaConfig{
		MaxRetries:    10,
		ByteLimit:     1048576,
		SASLAlgorithm: "sha512",
	}

	return cfg, nil
}

// AdaptKafkaSinkFunc returns a KafkaSinkAdapter.
func AdaptKafkaSinkFunc(f func(c *KafkaConfig) (*KafkaSink, error)) KafkaSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*KafkaConfig)
		if !ok {
			return nil, errors.New("invalid input, expected KafkaConfig")
		}

		return f(cfg)
	}
}

// Open connects the producer to the brokers
func (ks *KafkaSink) Open() error {
	if ks.producer != nil {
		return nil
	}

	producer, err := ks.newProducer()
	if err != nil {
		return errors.Wrap(err, "Failed to create Kafka producer")
	}
	ks.producer = producer
	return nil
}

// Publish sends the whole batch with a single SendMessages call
func (ks *KafkaSink) Publish(ctx context.Context, batch *models.Batch) error {
	if ks.producer == nil {
		return errors.New("Kafka producer has not been opened, must call Open() before attempting to publish")
	}

	ks.log.Debugf("Writing batch %d of %d payloads to topic ...", batch.Index, batch.Len())

	msgs := make([]*sarama.ProducerMessage, batch.Len())
	for i, p := range batch.Payloads {
		msgs[i] = &sarama.ProducerMessage{
			Topic: ks.topicName,
			Key:   sarama.StringEncoder(p.PartitionKey),
			Value: sarama.ByteEncoder(p.Data),
		}
	}

	if err := ks.producer.SendMessages(msgs); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Error writing batch to Kafka topic: %v", ks.topicName))
	}

	ks.log.Debugf("Successfully wrote batch %d of %d payloads", batch.Index, batch.Len())
	return nil
}

// Close stops the producer
func (ks *KafkaSink) Close() {
	if ks.producer == nil {
		return
	}

	ks.log.Warnf("Closing sink for topic '%s'", ks.topicName)
	if err := ks.producer.Close(); err != nil {
		ks.log.WithFields(log.Fields{"error": err}).Error("Failed to close producer")
	}
	ks.producer = nil
}

// MaximumBatchMessages returns 0 as Kafka batches are only bound by size
func (ks *KafkaSink) MaximumBatchMessages() int {
	return 0
}

// MaximumBatchBytes keeps every batch within the producer's message limit,
// less the record framing sarama counts against it
func (ks *KafkaSink) MaximumBatchBytes() int {
	return capMinusOverhead(ks.messageByteLimit, kafkaRecordOverheadBytes)
}

// GetID returns the identifier for this sink
func (ks *KafkaSink) GetID() string {
	return fmt.Sprintf("brokers:%s:topic:%s", ks.brokers, ks.topicName)
}
