// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package relay

import (
	"strconv"
	"strings"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

const (
	// MaxMessageSizeKB bounds the filler size callers may ask for. A filler of
	// this size is already bigger than the batch cap of every sink.
	MaxMessageSizeKB = 1024

	// MaxNumberOfEvents bounds how many synthetic events one call may ask for
	MaxNumberOfEvents = 100000
)

// ParseIntParameter reads a non-negative integer, falling back to def.
//
// An empty value returns def without an error. A malformed or negative value
// returns def together with an InvalidParameterError for the caller to log.
func ParseIntParameter(name string, raw string, def int) (int, error) {
	return ParseBoundedIntParameter(name, raw, def, 0)
}

// ParseBoundedIntParameter is ParseIntParameter with values above max also
// rejected. A max of 0 or less leaves the value unbounded.
func ParseBoundedIntParameter(name string, raw string, def int, max int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def, nil
	}

	v, err := strconv.Atoi(trimmed)
	if err != nil || !inRange(v, max) {
		return def, &models.InvalidParameterError{Name: name, Value: raw, Default: def}
	}
	return v, nil
}

// CheckIntParameter applies the same bounds to a value which is already an int
func CheckIntParameter(name string, v int, def int, max int) (int, error) {
	if !inRange(v, max) {
		return def, &models.InvalidParameterError{Name: name, Value: strconv.Itoa(v), Default: def}
	}
	return v, nil
}

func inRange(v int, max int) bool {
	return v >= 0 && (max <= 0 || v <= max)
}
