// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowplow-devops/event-relay/config"
	"github.com/snowplow-devops/event-relay/pkg/models"
	"github.com/snowplow-devops/event-relay/pkg/relay"
	"github.com/snowplow-devops/event-relay/pkg/sink/sinkiface"
	"github.com/snowplow-devops/event-relay/pkg/testutil"
)

func TestMain(m *testing.M) {
	os.Clearenv()
	exitVal := m.Run()
	os.Exit(exitVal)
}

type recordingStatsReceiver struct {
	mu      sync.Mutex
	results []*models.RelayResult
	closed  bool
}

func (r *recordingStatsReceiver) Send(res *models.RelayResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recordingStatsReceiver) Close() {
	r.closed = true
}

func testSettings() *config.RelayConfig {
	return &config.RelayConfig{
		MaxBatchBytes:   1048576,
		MessageSizeKB:   1,
		NumberOfEvents:  10,
		PublishAttempts: 1,
	}
}

func testTrigger(settings *config.RelayConfig, newSink func() (sinkiface.Sink, error)) (*Trigger, *test.Hook, *recordingStatsReceiver) {
	logger, hook := test.NewNullLogger()
	entry := logger.WithFields(log.Fields{"name": "trigger-test"})
	sr := &recordingStatsReceiver{}

	return newTriggerWithInterfaces(settings, relay.New(nil, entry), newSink, sr, entry), hook, sr
}

func sinkFactory(s sinkiface.Sink) func() (sinkiface.Sink, error) {
	return func() (sinkiface.Sink, error) {
		return s, nil
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *TriggerResponse {
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp TriggerResponse
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func TestHTTPTriggerHandler_MethodNotAllowed(t *testing.T) {
	sink := testutil.NewMockSink()
	trigger, _, _ := testTrigger(testSettings(), sinkFactory(sink))

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodPut, "/api/relay", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 0, sink.OpenCalls())
}

func TestHTTPTriggerHandler_ConfigurationMissing(t *testing.T) {
	assert := assert.New(t)

	trigger, _, _ := testTrigger(testSettings(), func() (sinkiface.Sink, error) {
		return nil, &models.ConfigurationMissingError{Component: "EventHub", Fields: []string{"A", "B"}}
	})

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodGet, "/api/relay", nil))

	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Equal("EventHub configuration is missing: please set A and B\n", rec.Body.String())
}

func TestHTTPTriggerHandler_SinkError(t *testing.T) {
	trigger, _, _ := testTrigger(testSettings(), func() (sinkiface.Sink, error) {
		return nil, errors.New("bad tls files")
	})

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodGet, "/api/relay", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHTTPTriggerHandler_Body(t *testing.T) {
	assert := assert.New(t)

	sink := testutil.NewMockSink()
	trigger, _, sr := testTrigger(testSettings(), sinkFactory(sink))

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodPost, "/api/relay?numberOfEvents=3", strings.NewReader("hello")))

	resp := decodeResponse(t, rec)
	assert.Equal(StatusSuccess, resp.Status)
	assert.Equal("3 events sent to mock successfully", resp.Message)
	assert.Equal("hello", resp.EventData)
	assert.Equal(&ResultSummary{Accepted: 3, Sent: 1}, resp.Result)

	assert.Equal([]string{"hello", "hello", "hello"}, sink.PublishedData())
	assert.Equal(1, sink.CloseCalls())

	require.Len(t, sr.results, 1)
	assert.Equal(int64(3), sr.results[0].Accepted)
}

func TestHTTPTriggerHandler_Filler(t *testing.T) {
	assert := assert.New(t)

	sink := testutil.NewMockSink()
	trigger, _, _ := testTrigger(testSettings(), sinkFactory(sink))

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodGet, "/api/relay?messageSize=2&numberOfEvents=2", nil))

	resp := decodeResponse(t, rec)
	assert.Equal(StatusSuccess, resp.Status)
	assert.Len(resp.EventData, maxEventDataBytes)
	assert.True(strings.HasPrefix(resp.EventData, "Measurement0:"))

	published := sink.PublishedData()
	require.Len(t, published, 2)
	assert.Equal(2*1024, strings.Count(published[0], ";"))
	assert.Equal(published[0], published[1])
}

func TestHTTPTriggerHandler_InvalidParameters(t *testing.T) {
	assert := assert.New(t)

	sink := testutil.NewMockSink()
	trigger, hook, _ := testTrigger(testSettings(), sinkFactory(sink))

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodGet, "/api/relay?messageSize=big&numberOfEvents=-2", nil))

	resp := decodeResponse(t, rec)
	assert.Equal(StatusSuccess, resp.Status)
	assert.Equal(int64(10), resp.Result.Accepted)
	assert.Equal(1024, strings.Count(sink.PublishedData()[0], ";"))

	var warnings []string
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warnings = append(warnings, e.Message)
		}
	}
	assert.Equal([]string{
		"invalid messageSize parameter \"big\"; using default value of 1",
		"invalid numberOfEvents parameter \"-2\"; using default value of 10",
	}, warnings)
}

func TestHTTPTriggerHandler_ParametersOutOfRange(t *testing.T) {
	assert := assert.New(t)

	sink := testutil.NewMockSink()
	trigger, hook, _ := testTrigger(testSettings(), sinkFactory(sink))

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodGet, "/api/relay?messageSize=100000000&numberOfEvents=999999999", nil))

	resp := decodeResponse(t, rec)
	assert.Equal(StatusSuccess, resp.Status)
	assert.Equal(int64(10), resp.Result.Accepted)
	assert.Equal(1024, strings.Count(sink.PublishedData()[0], ";"))

	var warnings []string
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warnings = append(warnings, e.Message)
		}
	}
	assert.Equal([]string{
		"invalid messageSize parameter \"100000000\"; using default value of 1",
		"invalid numberOfEvents parameter \"999999999\"; using default value of 10",
	}, warnings)
}

func TestHTTPTriggerHandler_Partial(t *testing.T) {
	assert := assert.New(t)

	settings := testSettings()
	settings.MaxBatchBytes = 10

	sink := testutil.NewMockSink()
	sink.FailOn[1] = errors.New("link detached")
	trigger, _, _ := testTrigger(settings, sinkFactory(sink))

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodPost, "/api/relay?numberOfEvents=4", strings.NewReader("hello")))

	resp := decodeResponse(t, rec)
	assert.Equal(StatusPartial, resp.Status)
	assert.Equal("2 of 4 events sent to mock", resp.Message)
	assert.Equal(int64(2), resp.Result.Accepted)
	assert.Equal(int64(2), resp.Result.Failed)
	assert.Equal(int64(1), resp.Result.BatchesFailed)
	assert.Equal([]string{"failed to publish to mock: batch 0: link detached"}, resp.Result.Errors)
}

func TestHTTPTriggerHandler_Failed(t *testing.T) {
	assert := assert.New(t)

	sink := testutil.NewMockSink()
	sink.OpenErr = errors.New("no credentials")
	trigger, _, _ := testTrigger(testSettings(), sinkFactory(sink))

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodPost, "/api/relay?numberOfEvents=2", strings.NewReader("hello")))

	resp := decodeResponse(t, rec)
	assert.Equal(StatusFailed, resp.Status)
	assert.Equal("Failed to send events to mock", resp.Message)
	assert.Equal(int64(2), resp.Result.Failed)
}

func TestHTTPTriggerHandler_TruncatesEventData(t *testing.T) {
	sink := testutil.NewMockSink()
	trigger, _, _ := testTrigger(testSettings(), sinkFactory(sink))

	body := strings.Repeat("x", 3000)
	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodPost, "/api/relay?numberOfEvents=1", strings.NewReader(body)))

	resp := decodeResponse(t, rec)
	assert.Equal(t, body[:1024], resp.EventData)
	assert.Equal(t, []string{body}, sink.PublishedData())
}

func TestTruncate(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("hello", truncate([]byte("hello"), 10))
	assert.Equal("hel", truncate([]byte("hello"), 3))

	// "é" is two bytes, so a cut through it backs off to the rune start
	data := []byte(strings.Repeat("a", 1023) + "é")
	out := truncate(data, 1024)
	assert.Equal(strings.Repeat("a", 1023), out)
	assert.True(utf8.ValidString(out))

	// Three byte runes cut at every offset stay valid
	euros := []byte(strings.Repeat("€", 10))
	for limit := 0; limit <= len(euros); limit++ {
		out := truncate(euros, limit)
		assert.True(utf8.ValidString(out), "limit %d", limit)
		assert.Equal(limit/3*3, len(out), "limit %d", limit)
	}
}

func TestHTTPTriggerHandler_DefaultConfig(t *testing.T) {
	assert := assert.New(t)

	cfg, err := config.NewConfig()
	require.Nil(t, err)

	trigger, err := NewTrigger(cfg)
	require.Nil(t, err)
	defer trigger.Close()

	rec := httptest.NewRecorder()
	trigger.HTTPTriggerHandler(rec, httptest.NewRequest(http.MethodGet, "/api/relay", nil))

	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Contains(rec.Body.String(), "EventHub configuration is missing")
}

func TestStreamTriggerHandler_Success(t *testing.T) {
	assert := assert.New(t)

	sink := testutil.NewMockSink()
	trigger, _, sr := testTrigger(testSettings(), sinkFactory(sink))

	res, err := trigger.StreamTriggerHandler(context.Background(), []string{"a", "b"})
	assert.Nil(err)
	assert.Equal(int64(2), res.Accepted)
	assert.Equal([]string{"a", "b"}, sink.PublishedData())
	assert.Len(sr.results, 1)

	trigger.Close()
	assert.True(sr.closed)
}

func TestStreamTriggerHandler_Failure(t *testing.T) {
	assert := assert.New(t)

	sink := testutil.NewMockSink()
	sink.FailOn[1] = errors.New("throttled")
	trigger, _, _ := testTrigger(testSettings(), sinkFactory(sink))

	res, err := trigger.StreamTriggerHandler(context.Background(), []string{"a"})
	require.NotNil(t, err)
	assert.Equal(int64(1), res.Failed)
	assert.Contains(err.Error(), "failed to relay 1 of 1 events")
	assert.Contains(err.Error(), "throttled")
}

func TestStreamTriggerHandler_SinkError(t *testing.T) {
	trigger, _, _ := testTrigger(testSettings(), func() (sinkiface.Sink, error) {
		return nil, errors.New("bad config")
	})

	res, err := trigger.StreamTriggerHandler(context.Background(), []string{"a"})
	assert.Nil(t, res)
	assert.EqualError(t, err, "bad config")
}
