// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/common"
	"github.com/snowplow-devops/event-relay/pkg/models"
)

// HTTPConfig configures the destination endpoint
type HTTPConfig struct {
	URL                     string `hcl:"url,optional" env:"SINK_HTTP_URL"`
	RequestTimeoutInSeconds int    `hcl:"request_timeout_in_seconds,optional" env:"SINK_HTTP_TIMEOUT_IN_SECONDS"`
	Headers                 string `hcl:"headers,optional" env:"SINK_HTTP_HEADERS"`
	BasicAuthUsername       string `hcl:"basic_auth_username,optional" env:"SINK_HTTP_BASICAUTH_USERNAME"`
	BasicAuthPassword       string `hcl:"basic_auth_password,optional" env:"SINK_HTTP_BASICAUTH_PASSWORD"`
	CertFile                string `hcl:"cert_file,optional" env:"SINK_HTTP_TLS_CERT_FILE"`
	KeyFile                 string `hcl:"key_file,optional" env:"SINK_HTTP_TLS_KEY_FILE"`
	CaFile                  string `hcl:"ca_file,optional" env:"SINK_HTTP_TLS_CA_FILE"`
	SkipVerifyTLS           bool   `hcl:"skip_verify_tls,optional" env:"SINK_HTTP_TLS_SKIP_VERIFY_TLS"`
}

// HTTPSink posts each batch as a JSON array of strings
type HTTPSink struct {
	client  *resty.Client
	httpURL string

	log *log.Entry
}

func checkURL(str string) error {
	u, err := url.Parse(str)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New(fmt.Sprintf("Invalid url for HTTP sink: '%s'", str))
	}
	return nil
}

// getHeaders expects a JSON object with key-value pairs, eg: `{"Max Forwards": "10", "Accept-Language": "en-US"}`
func getHeaders(headers string) (map[string]string, error) {
	if headers == "" { // No headers is acceptable
		return nil, nil
	}
	var parsed map[string]string

	err := json.Unmarshal([]byte(headers), &parsed)
	if err != nil {
		return nil, errors.Wrap(err, "Error parsing headers. Ensure that headers are provided as a JSON of string key-value pairs")
	}

	return parsed, nil
}

// NewHTTPSink creates a client for posting batches over HTTP
func NewHTTPSink(cfg *HTTPConfig) (*HTTPSink, error) {
	if cfg.URL == "" {
		return nil, &models.ConfigurationMissingError{
			Component: "HTTP",
			Fields:    []string{"SINK_HTTP_URL"},
		}
	}
	if err := checkURL(cfg.URL); err != nil {
		return nil, err
	}
	parsedHeaders, err := getHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := common.CreateTLSConfiguration(cfg.CertFile, cfg.KeyFile, cfg.CaFile, cfg.SkipVerifyTLS)
	if err != nil {
		return nil, err
	}

	client := resty.New().
		SetTimeout(time.Duration(cfg.RequestTimeoutInSeconds) * time.Second).
		SetHeader("Content-Type", "application/json")
	if len(parsedHeaders) > 0 {
		client.SetHeaders(parsedHeaders)
	}
	if cfg.BasicAuthUsername != "" && cfg.BasicAuthPassword != "" {
		client.SetBasicAuth(cfg.BasicAuthUsername, cfg.BasicAuthPassword)
	}
	if tlsConfig != nil {
		client.SetTLSClientConfig(tlsConfig)
	}

	return &HTTPSink{
		client:  client,
		httpURL: cfg.URL,
		log:     log.WithFields(log.Fields{"sink": "http", "url": cfg.URL}),
	}, nil
}

// The HTTPSinkAdapter type is an adapter for functions to be used as
// pluggable components for HTTP sink. Implements the Pluggable interface.
type HTTPSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f HTTPSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f HTTPSinkAdapter) ProvideDefault() (interface{}, error) {
	// Provide defaults for the optional parameters
	// whose default is not their zero value.
	cfg := &HTTPConfig{
		RequestTimeoutInSeconds: 5,
	}

	return cfg, nil
}

// AdaptHTTPSinkFunc returns an HTTPSinkAdapter.
func AdaptHTTPSinkFunc(f func(c *HTTPConfig) (*HTTPSink, error)) HTTPSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*HTTPConfig)
		if !ok {
			return nil, errors.New("invalid input, expected HTTPConfig")
		}

		return f(cfg)
	}
}

// Open does not do anything for this sink
func (ht *HTTPSink) Open() error {
	return nil
}

// Publish posts the batch in a single request; any non-2xx status fails it
func (ht *HTTPSink) Publish(ctx context.Context, batch *models.Batch) error {
	ht.log.Debugf("Posting batch %d of %d payloads ...", batch.Index, batch.Len())

	body := make([]string, batch.Len())
	for i, p := range batch.Payloads {
		body[i] = string(p.Data)
	}

	resp, err := ht.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(ht.httpURL)
	if err != nil {
		return errors.Wrap(err, "Error sending http request")
	}
	if resp.IsError() {
		return errors.New(fmt.Sprintf("Got response status %d: %s", resp.StatusCode(), readBodySnippet(resp.Body())))
	}

	ht.log.Debugf("Successfully posted batch %d of %d payloads", batch.Index, batch.Len())
	return nil
}

func readBodySnippet(body []byte) string {
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}

// Close does not do anything for this sink
func (ht *HTTPSink) Close() {}

// MaximumBatchMessages returns 0 as requests are only bound by size
func (ht *HTTPSink) MaximumBatchMessages() int {
	return 0
}

// MaximumBatchBytes returns 0 as the request size is left to the endpoint
func (ht *HTTPSink) MaximumBatchBytes() int {
	return 0
}

// GetID returns the identifier for this sink
func (ht *HTTPSink) GetID() string {
	return ht.httpURL
}
