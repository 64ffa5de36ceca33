// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// HeartbeatSchema is the schema of periodic heartbeat events
	HeartbeatSchema = "iglu:com.snowplowanalytics.monitoring.loader/heartbeat/jsonschema/1-0-0"

	// AlertSchema is the schema of alert events
	AlertSchema = "iglu:com.snowplowanalytics.monitoring.loader/alert/jsonschema/1-0-0"
)

// MonitoringEvent is the body posted to the webhook
type MonitoringEvent struct {
	Schema string         `json:"schema"`
	Data   MonitoringData `json:"data"`
}

// MonitoringData identifies the instance sending the event
type MonitoringData struct {
	AppName    string            `json:"appName"`
	AppVersion string            `json:"appVersion"`
	Tags       map[string]string `json:"tags"`

	Message string `json:"message,omitempty"`
}

// MonitoringSender describes the interface for how to send heartbeat & alert events
type MonitoringSender interface {
	Do(req *http.Request) (*http.Response, error)
}

// Monitoring sends heartbeats on an interval and alerts when relaying fails.
// Only the first alert is sent; once it is delivered nothing else is.
type Monitoring struct {
	appName           string
	appVersion        string
	client            MonitoringSender
	endpoint          string
	tags              map[string]string
	heartbeatInterval time.Duration
	alertChan         chan error
	log               *log.Entry

	exitSignal chan struct{}
	stopped    sync.WaitGroup
}

// NewMonitoring builds a Monitoring posting to endpoint through client
func NewMonitoring(appName, appVersion string, client MonitoringSender, endpoint string, tags map[string]string, heartbeatInterval time.Duration) *Monitoring {
	return &Monitoring{
		appName:           appName,
		appVersion:        appVersion,
		client:            client,
		endpoint:          endpoint,
		tags:              tags,
		heartbeatInterval: heartbeatInterval,
		alertChan:         make(chan error, 1),
		log:               log.WithFields(log.Fields{"name": "Monitoring", "endpoint": endpoint}),
		exitSignal:        make(chan struct{}),
	}
}

// Start launches the heartbeat and alert loop
func (m *Monitoring) Start() {
	ticker := time.NewTicker(m.heartbeatInterval)

	m.stopped.Add(1)
	go func() {
		defer m.stopped.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if m.client == nil {
					continue
				}
				m.log.Debug("Sending heartbeat")
				if err := m.send(HeartbeatSchema, ""); err != nil {
					m.log.Warnf("failed to send heartbeat event: %s", err)
				}
			case alert := <-m.alertChan:
				if m.client == nil {
					continue
				}
				m.log.Info("Sending alert")
				if err := m.send(AlertSchema, alert.Error()); err != nil {
					m.log.Warnf("failed to send alert event: %s", err)
					continue
				}
				m.client = nil
			case <-m.exitSignal:
				m.log.Info("Monitoring is shutting down")
				return
			}
		}
	}()
}

// Alert queues err to be sent. Alerts raised while one is pending are dropped.
func (m *Monitoring) Alert(err error) {
	select {
	case m.alertChan <- err:
	default:
		m.log.Debugf("Alert already pending, dropping: %s", err)
	}
}

// Stop halts the loop and waits for it to exit
func (m *Monitoring) Stop() {
	close(m.exitSignal)
	m.stopped.Wait()
}

func (m *Monitoring) send(schema string, message string) error {
	event := MonitoringEvent{
		Schema: schema,
		Data: MonitoringData{
			AppName:    m.appName,
			AppVersion: m.appVersion,
			Tags:       m.tags,
			Message:    message,
		},
	}

	req, err := m.prepareRequest(event)
	if err != nil {
		return errors.Wrap(err, "failed to prepare request")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}

func (m *Monitoring) prepareRequest(event MonitoringEvent) (*http.Request, error) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(event); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, m.endpoint, &body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
