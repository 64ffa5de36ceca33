// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/config"
	"github.com/snowplow-devops/event-relay/pkg/models"
	"github.com/snowplow-devops/event-relay/pkg/relay"
	"github.com/snowplow-devops/event-relay/pkg/sink/sinkiface"
	"github.com/snowplow-devops/event-relay/pkg/statsreceiver/statsreceiveriface"
)

const (
	// StatusSuccess means every event was relayed
	StatusSuccess = "success"

	// StatusPartial means some but not all events were relayed
	StatusPartial = "partial"

	// StatusFailed means no event was relayed
	StatusFailed = "failed"

	maxEventDataBytes = 1024
)

// ResultSummary is the JSON view of a RelayResult
type ResultSummary struct {
	Accepted      int64    `json:"accepted"`
	Sent          int64    `json:"sent"`
	Failed        int64    `json:"failed"`
	BatchesFailed int64    `json:"batchesFailed"`
	Oversized     int64    `json:"oversized"`
	Errors        []string `json:"errors,omitempty"`
}

// TriggerResponse is returned by the HTTP trigger once a send was attempted
type TriggerResponse struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	EventData string         `json:"eventData"`
	Result    *ResultSummary `json:"result"`
}

// Trigger relays events for the serverless entrypoints.
// A single Trigger serves every invocation; each invocation builds its own sink.
type Trigger struct {
	settings *config.RelayConfig
	relay    *relay.Relay
	newSink  func() (sinkiface.Sink, error)
	stats    statsreceiveriface.StatsReceiver

	log *log.Entry
}

// NewTrigger builds a Trigger from the loaded configuration
func NewTrigger(cfg *config.Config) (*Trigger, error) {
	tags, err := cfg.GetTags()
	if err != nil {
		return nil, err
	}

	sr, err := cfg.GetStatsReceiver(tags)
	if err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"app": AppName, "version": AppVersion})

	return newTriggerWithInterfaces(cfg.RelaySettings(), cfg.GetRelay(logger), cfg.GetSink, sr, logger), nil
}

// newTriggerWithInterfaces allows the user to provide a sink factory and stats receiver
func newTriggerWithInterfaces(settings *config.RelayConfig, r *relay.Relay, newSink func() (sinkiface.Sink, error), sr statsreceiveriface.StatsReceiver, logger *log.Entry) *Trigger {
	return &Trigger{
		settings: settings,
		relay:    r,
		newSink:  newSink,
		stats:    sr,
		log:      logger,
	}
}

// Close releases the stats receiver, if any
func (t *Trigger) Close() {
	if t.stats != nil {
		t.stats.Close()
	}
}

// HTTPTriggerHandler relays numberOfEvents copies of the request body, or of a
// generated filler of messageSize KB when the body is empty.
func (t *Trigger) HTTPTriggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		t.log.Errorf("method not allowed: [%s] but expecting [%s] or [%s]", r.Method, http.MethodGet, http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sink, err := t.newSink()
	if err != nil {
		var cErr *models.ConfigurationMissingError
		if errors.As(err, &cErr) {
			t.log.WithError(err).Error("Sink configuration is missing")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		t.log.WithError(err).Error("Failed to build sink")
		http.Error(w, "failed to build sink", http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	messageSize := t.intParameter("messageSize", query.Get("messageSize"), t.settings.MessageSizeKB, relay.MaxMessageSizeKB)
	numberOfEvents := t.intParameter("numberOfEvents", query.Get("numberOfEvents"), t.settings.NumberOfEvents, relay.MaxNumberOfEvents)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.log.WithError(err).Error("failed to read request body")
		http.Error(w, "error reading body", http.StatusInternalServerError)
		return
	}

	message := body
	if len(message) == 0 {
		message = t.relay.GenerateFiller(messageSize).Data
	}

	payloads := make([]*models.Payload, numberOfEvents)
	for i := range payloads {
		payloads[i] = models.NewPayload(message)
	}

	res := t.relay.Send(r.Context(), payloads, sink, t.settings.MaxBatchBytes)
	t.report(res)

	status := statusOf(res)
	response := &TriggerResponse{
		Status:    status,
		Message:   describe(status, res, int64(numberOfEvents), sink.GetID()),
		EventData: truncate(message, maxEventDataBytes),
		Result:    summarize(res),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		t.log.WithError(err).Error("failed to write response")
	}
}

// StreamTriggerHandler relays events delivered by an upstream stream trigger.
// Any event that could not be relayed makes the invocation fail so that
// the host can redeliver the batch.
func (t *Trigger) StreamTriggerHandler(ctx context.Context, events []string) (*models.RelayResult, error) {
	sink, err := t.newSink()
	if err != nil {
		return nil, err
	}

	res := t.relay.Send(ctx, models.NewPayloadsFromStrings(events), sink, t.settings.MaxBatchBytes)
	t.report(res)

	if res.HasFailures() {
		return res, errors.Wrapf(res.Err(), "failed to relay %d of %d events", res.Failed, res.Total())
	}
	return res, nil
}

func (t *Trigger) intParameter(name string, raw string, def int, max int) int {
	v, err := relay.ParseBoundedIntParameter(name, raw, def, max)
	if err != nil {
		t.log.Warn(err.Error())
	}
	return v
}

func (t *Trigger) report(res *models.RelayResult) {
	if t.stats != nil {
		t.stats.Send(res)
	}
}

func statusOf(res *models.RelayResult) string {
	switch {
	case res.Failed == 0:
		return StatusSuccess
	case res.Accepted > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

func describe(status string, res *models.RelayResult, requested int64, sinkID string) string {
	switch status {
	case StatusSuccess:
		return fmt.Sprintf("%d events sent to %s successfully", requested, sinkID)
	case StatusPartial:
		return fmt.Sprintf("%d of %d events sent to %s", res.Accepted, requested, sinkID)
	default:
		return fmt.Sprintf("Failed to send events to %s", sinkID)
	}
}

func summarize(res *models.RelayResult) *ResultSummary {
	summary := &ResultSummary{
		Accepted:      res.Accepted,
		Sent:          res.Sent,
		Failed:        res.Failed,
		BatchesFailed: res.BatchesFailed,
		Oversized:     res.FailedOfKind(models.KindPayloadTooLarge),
	}
	for _, f := range res.Failures {
		summary.Errors = append(summary.Errors, f.Err.Error())
	}
	return summary
}

// truncate cuts data to at most limit bytes without splitting a UTF-8 rune
func truncate(data []byte, limit int) string {
	if len(data) <= limit {
		return string(data)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut])
}
