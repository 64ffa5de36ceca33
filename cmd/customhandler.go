// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/snowplow-devops/event-relay/pkg/health"
)

const (
	// HTTPTriggerRoute is the route forwarded HTTP trigger requests arrive on
	HTTPTriggerRoute = "/api/relay"

	// StreamTriggerRoute is the route stream trigger invocations arrive on
	StreamTriggerRoute = "/StreamRelay"

	// StreamBindingName is the name of the trigger binding holding the events
	StreamBindingName = "events"

	// HealthRoute reports whether the custom handler is serving
	HealthRoute = "/health"
)

// InvocationRequest is the envelope the functions host posts for a non HTTP trigger
type InvocationRequest struct {
	Data     map[string]json.RawMessage `json:"Data"`
	Metadata map[string]interface{}     `json:"Metadata"`
}

// InvocationResponse is the envelope returned to the functions host
type InvocationResponse struct {
	Outputs     map[string]interface{} `json:"Outputs"`
	Logs        []string               `json:"Logs"`
	ReturnValue interface{}            `json:"ReturnValue"`
}

// NewCustomHandlerMux routes the functions host requests to the trigger handlers
func NewCustomHandlerMux(t *Trigger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(HTTPTriggerRoute, t.HTTPTriggerHandler)
	mux.HandleFunc(StreamTriggerRoute, t.streamInvocationHandler)
	mux.HandleFunc(HealthRoute, health.Handler)
	return mux
}

// ServeCustomHandler listens on addr until ctx is done, then shuts the server down
func ServeCustomHandler(ctx context.Context, addr string, t *Trigger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewCustomHandlerMux(t),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		t.log.Infof("Custom handler listening on %s", addr)
		errs <- server.ListenAndServe()
	}()

	health.SetHealthy()
	defer health.SetUnhealthy()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		t.log.WithError(err).Errorf("error during shutdown http server")
		return server.Close()
	}
	return nil
}

func (t *Trigger) streamInvocationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		t.log.Errorf("method not allowed: [%s] but expecting [%s]", r.Method, http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.log.WithError(err).Error("failed to read request body")
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}

	var invocation InvocationRequest
	if err := json.Unmarshal(body, &invocation); err != nil {
		t.log.WithError(err).Error("failed to parse invocation")
		http.Error(w, "error parsing invocation", http.StatusBadRequest)
		return
	}

	events, err := decodeEvents(invocation.Data[StreamBindingName])
	if err != nil {
		t.log.WithError(err).Error("failed to parse events")
		http.Error(w, "error parsing events", http.StatusBadRequest)
		return
	}

	response := &InvocationResponse{
		Outputs: map[string]interface{}{},
		Logs:    []string{},
	}
	status := http.StatusOK

	res, err := t.StreamTriggerHandler(r.Context(), events)
	if res != nil {
		response.ReturnValue = summarize(res)
	}
	if err != nil {
		t.log.WithError(err).Error("Stream invocation failed")
		response.Logs = append(response.Logs, err.Error())
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		t.log.WithError(err).Error("failed to write response")
	}
}

// decodeEvents accepts the binding either as an array of events, or as a
// string holding such an array, or as a single string event. Events which
// are not strings are relayed as their JSON text.
func decodeEvents(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err == nil {
		events := make([]string, 0, len(elements))
		for _, element := range elements {
			var s string
			if err := json.Unmarshal(element, &s); err == nil {
				events = append(events, s)
				continue
			}
			events = append(events, string(element))
		}
		return events, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "events binding is neither an array nor a string")
	}

	var nested []json.RawMessage
	if err := json.Unmarshal([]byte(s), &nested); err == nil {
		return decodeEvents(json.RawMessage(s))
	}
	return []string{s}, nil
}
