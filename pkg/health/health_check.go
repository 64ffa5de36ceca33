// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package health

import (
	"net/http"
	"sync/atomic"
)

var isHealthy atomic.Bool

// SetHealthy marks the process as able to relay
func SetHealthy() {
	isHealthy.Store(true)
}

// SetUnhealthy marks the process as unable to relay
func SetUnhealthy() {
	isHealthy.Store(false)
}

// IsHealthy reports the last state set
func IsHealthy() bool {
	return isHealthy.Load()
}

// Handler responds 200 while healthy and 503 otherwise
func Handler(w http.ResponseWriter, r *http.Request) {
	if IsHealthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	http.Error(w, "unhealthy", http.StatusServiceUnavailable)
}
