// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package models

import (
	"fmt"
	"strings"
)

// ErrorKind classifies the failures a relay can report
type ErrorKind string

const (
	// KindConfigurationMissing means a required sink identity is absent
	KindConfigurationMissing ErrorKind = "ConfigurationMissing"

	// KindPayloadTooLarge means a single payload exceeds the batch byte limit
	KindPayloadTooLarge ErrorKind = "PayloadTooLarge"

	// KindTransportError means the sink failed to publish a batch
	KindTransportError ErrorKind = "TransportError"

	// KindInvalidParameter means a numeric input was malformed
	KindInvalidParameter ErrorKind = "InvalidParameter"
)

// KindedError is implemented by every error the relay produces
type KindedError interface {
	error
	Kind() ErrorKind
}

// ConfigurationMissingError is returned when a component is built without
// the settings that identify where it should connect
type ConfigurationMissingError struct {
	Component string
	Fields    []string
}

func (e *ConfigurationMissingError) Error() string {
	return fmt.Sprintf("%s configuration is missing: please set %s", e.Component, strings.Join(e.Fields, " and "))
}

// Kind implements KindedError
func (e *ConfigurationMissingError) Kind() ErrorKind {
	return KindConfigurationMissing
}

// PayloadTooLargeError is recorded for a payload that cannot fit in any batch
type PayloadTooLargeError struct {
	Size  int
	Limit int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload of %d bytes exceeds the batch limit of %d bytes", e.Size, e.Limit)
}

// Kind implements KindedError
func (e *PayloadTooLargeError) Kind() ErrorKind {
	return KindPayloadTooLarge
}

// TransportError wraps a failure returned by a sink while publishing
type TransportError struct {
	SinkID string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to publish to %s: %s", e.SinkID, e.Err)
}

// Unwrap returns the underlying sink error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Cause supports github.com/pkg/errors.Cause
func (e *TransportError) Cause() error {
	return e.Err
}

// Kind implements KindedError
func (e *TransportError) Kind() ErrorKind {
	return KindTransportError
}

// InvalidParameterError describes a malformed numeric input which has been
// replaced by its default
type InvalidParameterError struct {
	Name    string
	Value   string
	Default int
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s parameter %q; using default value of %d", e.Name, e.Value, e.Default)
}

// Kind implements KindedError
func (e *InvalidParameterError) Kind() ErrorKind {
	return KindInvalidParameter
}
