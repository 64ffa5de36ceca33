// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/models"
	"github.com/snowplow-devops/event-relay/pkg/monitoring"
	"github.com/snowplow-devops/event-relay/pkg/relay"
	"github.com/snowplow-devops/event-relay/pkg/sink/sinkiface"
	eventhubsource "github.com/snowplow-devops/event-relay/pkg/source/eventhub"
	"github.com/snowplow-devops/event-relay/pkg/statsreceiver"
	"github.com/snowplow-devops/event-relay/pkg/statsreceiver/statsreceiveriface"
)

// ConfigFileEnvVar names the environment variable pointing at an HCL file
const ConfigFileEnvVar = "EVENT_RELAY_CONFIG_FILE"

// Config holds the configuration data along with the decoder to decode them
type Config struct {
	Data    *ConfigurationData
	Decoder Decoder
}

// ConfigurationData for holding all configuration options
type ConfigurationData struct {
	Sink                    *Component                    `hcl:"sink,block" envPrefix:"SINK_"`
	Relay                   *RelayConfig                  `hcl:"relay,block"`
	Source                  *eventhubsource.Configuration `hcl:"source,block"`
	Sentry                  *SentryConfig                 `hcl:"sentry,block"`
	StatsReceiver           *StatsConfig                  `hcl:"stats_receiver,block"`
	Monitoring              *MonitoringConfig             `hcl:"monitoring,block"`
	LogLevel                string                        `hcl:"log_level,optional" env:"LOG_LEVEL"`
	GoogleServiceAccountB64 string                        `hcl:"google_application_credentials_b64,optional" env:"GOOGLE_APPLICATION_CREDENTIALS_B64"`
}

// Component is a type to abstract over configuration blocks.
type Component struct {
	Use *Use `hcl:"use,block"`
}

// Use is a type to denote what a component will be configured to use.
type Use struct {
	Name string   `hcl:",label" env:"NAME"`
	Body hcl.Body `hcl:",remain"`
}

// RelayConfig holds the batching and trigger defaults
type RelayConfig struct {
	MaxBatchBytes    int `hcl:"max_batch_bytes,optional" env:"RELAY_MAX_BATCH_BYTES"`
	MaxBatchMessages int `hcl:"max_batch_messages,optional" env:"RELAY_MAX_BATCH_MESSAGES"`
	MessageSizeKB    int `hcl:"message_size_kb,optional" env:"RELAY_MESSAGE_SIZE_KB"`
	NumberOfEvents   int `hcl:"number_of_events,optional" env:"RELAY_NUMBER_OF_EVENTS"`
	PublishAttempts  int `hcl:"publish_attempts,optional" env:"RELAY_PUBLISH_ATTEMPTS"`
	RetryDelayMs     int `hcl:"retry_delay_ms,optional" env:"RELAY_RETRY_DELAY_MS"`
}

// SentryConfig configures the Sentry error tracker.
type SentryConfig struct {
	Dsn   string `hcl:"dsn,optional" env:"SENTRY_DSN"`
	Tags  string `hcl:"tags,optional" env:"SENTRY_TAGS"`
	Debug bool   `hcl:"debug,optional" env:"SENTRY_DEBUG"`
}

// StatsConfig holds configuration for stats receivers.
type StatsConfig struct {
	Receiver *Use `hcl:"use,block" envPrefix:"STATS_RECEIVER_"`
}

// MonitoringConfig holds configuration for webhook monitoring.
type MonitoringConfig struct {
	Webhook *WebhookConfig `hcl:"webhook,block"`
}

// WebhookConfig configures where heartbeats and alerts are posted.
// Monitoring is disabled while the endpoint is empty.
type WebhookConfig struct {
	Endpoint                 string            `hcl:"endpoint" env:"MONITORING_WEBHOOK_ENDPOINT"`
	Tags                     map[string]string `hcl:"tags,optional" env:"MONITORING_WEBHOOK_TAGS"`
	HeartbeatIntervalSeconds int               `hcl:"heartbeat_interval_seconds,optional" env:"MONITORING_WEBHOOK_HEARTBEAT_INTERVAL_SECONDS"`
}

const defaultHeartbeatIntervalSeconds = 300

func defaultMonitoringConfig() *MonitoringConfig {
	return &MonitoringConfig{
		Webhook: &WebhookConfig{
			HeartbeatIntervalSeconds: defaultHeartbeatIntervalSeconds,
		},
	}
}

func defaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		MaxBatchBytes:   relay.DefaultMaxBatchBytes,
		MessageSizeKB:   10,
		NumberOfEvents:  10,
		PublishAttempts: 1,
		RetryDelayMs:    1000,
	}
}

// defaultConfigData returns the initial main configuration target.
func defaultConfigData() *ConfigurationData {
	return &ConfigurationData{
		Sink:   &Component{&Use{Name: "eventhub"}},
		Relay:  defaultRelayConfig(),
		Source: &eventhubsource.Configuration{},
		Sentry: &SentryConfig{
			Tags: "{}",
		},
		StatsReceiver: &StatsConfig{
			Receiver: &Use{},
		},
		Monitoring: defaultMonitoringConfig(),
		LogLevel:   "info",
	}
}

// NewConfig returns a configuration read from the file named by
// EVENT_RELAY_CONFIG_FILE, or from the environment when it is unset.
func NewConfig() (*Config, error) {
	filename := os.Getenv(ConfigFileEnvVar)
	if filename == "" {
		return newEnvConfig()
	}

	switch suffix := strings.ToLower(filepath.Ext(filename)); suffix {
	case ".hcl":
		return newHclConfig(filename)
	default:
		return nil, errors.New("invalid extension for the configuration file")
	}
}

func newEnvConfig() (*Config, error) {
	decoder := &envDecoder{}
	configData := defaultConfigData()

	if err := decoder.Decode(&DecoderOptions{}, configData); err != nil {
		return nil, errors.Wrap(err, "Failed to parse configuration from environment")
	}

	return &Config{
		Data:    configData,
		Decoder: decoder,
	}, nil
}

func newHclConfig(filename string) (*Config, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	fileHCL, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	configData := defaultConfigData()
	decoder := &hclDecoder{EvalContext: CreateHclContext()}

	if err = decoder.Decode(&DecoderOptions{Input: fileHCL.Body}, configData); err != nil {
		return nil, err
	}

	// A block that is present replaces the defaults it does not set
	if configData.Sink == nil || configData.Sink.Use == nil {
		configData.Sink = &Component{&Use{Name: "eventhub"}}
	}
	if configData.Sentry == nil {
		configData.Sentry = &SentryConfig{Tags: "{}"}
	}
	if configData.Relay == nil {
		configData.Relay = defaultRelayConfig()
	}
	if configData.Source == nil {
		configData.Source = &eventhubsource.Configuration{}
	}
	if configData.StatsReceiver == nil || configData.StatsReceiver.Receiver == nil {
		configData.StatsReceiver = &StatsConfig{Receiver: &Use{}}
	}
	if configData.Monitoring == nil || configData.Monitoring.Webhook == nil {
		configData.Monitoring = defaultMonitoringConfig()
	}

	return &Config{
		Data:    configData,
		Decoder: decoder,
	}, nil
}

// CreateComponent creates a pluggable component given the decoder options.
func (c *Config) CreateComponent(p Pluggable, opts *DecoderOptions) (interface{}, error) {
	componentConfigure := WithDecoderOptions(opts)

	decodedConfig, err := componentConfigure(p, c.Decoder)
	if err != nil {
		return nil, err
	}

	return p.Create(decodedConfig)
}

// GetSink builds and returns the sink that is configured.
// Missing required settings surface as a *models.ConfigurationMissingError.
func (c *Config) GetSink() (sinkiface.Sink, error) {
	useSink := c.Data.Sink.Use

	plug, err := sinkPlug(useSink.Name)
	if err != nil {
		return nil, err
	}

	component, err := c.CreateComponent(plug, &DecoderOptions{Input: useSink.Body})
	if err != nil {
		return nil, err
	}

	return asSink(useSink.Name, component)
}

// GetSource builds the upstream EventHub source
func (c *Config) GetSource() (*eventhubsource.Source, error) {
	return eventhubsource.NewSource(c.Data.Source)
}

// RelaySettings returns the relay block with every out-of-range value
// replaced by its default. Each replacement is logged as a warning.
func (c *Config) RelaySettings() *RelayConfig {
	defaults := defaultRelayConfig()
	settings := *c.Data.Relay

	// max of 0 leaves the value unbounded
	repair := func(name string, value *int, def int, min int, max int) {
		if *value >= min && (max == 0 || *value <= max) {
			return
		}
		log.Warn((&models.InvalidParameterError{Name: name, Value: strconv.Itoa(*value), Default: def}).Error())
		*value = def
	}

	repair("max_batch_bytes", &settings.MaxBatchBytes, defaults.MaxBatchBytes, 1, 0)
	repair("max_batch_messages", &settings.MaxBatchMessages, defaults.MaxBatchMessages, 0, 0)
	repair("message_size_kb", &settings.MessageSizeKB, defaults.MessageSizeKB, 0, relay.MaxMessageSizeKB)
	repair("number_of_events", &settings.NumberOfEvents, defaults.NumberOfEvents, 0, relay.MaxNumberOfEvents)
	repair("publish_attempts", &settings.PublishAttempts, defaults.PublishAttempts, 1, 0)
	repair("retry_delay_ms", &settings.RetryDelayMs, defaults.RetryDelayMs, 0, 0)

	return &settings
}

// GetRelay builds a Relay from the relay block
func (c *Config) GetRelay(logger *log.Entry) *relay.Relay {
	settings := c.RelaySettings()

	return relay.New(&relay.Options{
		MaxBatchMessages: settings.MaxBatchMessages,
		PublishAttempts:  settings.PublishAttempts,
		RetryDelay:       time.Duration(settings.RetryDelayMs) * time.Millisecond,
	}, logger)
}

// GetTags returns a list of tags to use in identifying this instance of event-relay with enough
// entropy so as to avoid collisions as it should not be possible to have both the host and process_id be
// the same.
func (c *Config) GetTags() (map[string]string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to get server hostname as tag")
	}

	tags := map[string]string{
		"host":       hostname,
		"process_id": strconv.Itoa(os.Getpid()),
	}

	return tags, nil
}

// GetStatsReceiver builds and returns the stats receiver, or nil when none is configured
func (c *Config) GetStatsReceiver(tags map[string]string) (statsreceiveriface.StatsReceiver, error) {
	useReceiver := c.Data.StatsReceiver.Receiver
	decoderOpts := &DecoderOptions{
		Input: useReceiver.Body,
	}

	switch useReceiver.Name {
	case "statsd":
		plug := statsreceiver.AdaptStatsDReceiverFunc(
			statsreceiver.NewStatsDReceiverWithTags(tags),
		)
		component, err := c.CreateComponent(plug, decoderOpts)
		if err != nil {
			return nil, err
		}

		if r, ok := component.(statsreceiveriface.StatsReceiver); ok {
			return r, nil
		}

		return nil, fmt.Errorf("could not interpret stats receiver configuration for %q", useReceiver.Name)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("Invalid stats receiver found; expected one of 'statsd' and got '%s'", useReceiver.Name)
	}
}

// GetMonitoring builds the webhook monitoring, or returns nil when no endpoint is configured
func (c *Config) GetMonitoring(appName, appVersion string, tags map[string]string) *monitoring.Monitoring {
	webhook := c.Data.Monitoring.Webhook
	if webhook.Endpoint == "" {
		return nil
	}

	merged := make(map[string]string, len(tags)+len(webhook.Tags))
	for k, v := range tags {
		merged[k] = v
	}
	for k, v := range webhook.Tags {
		merged[k] = v
	}

	interval := webhook.HeartbeatIntervalSeconds
	if interval <= 0 {
		interval = defaultHeartbeatIntervalSeconds
	}

	client := &http.Client{Timeout: 10 * time.Second}
	return monitoring.NewMonitoring(appName, appVersion, client, webhook.Endpoint, merged, time.Duration(interval)*time.Second)
}
