// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package docs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverviewFullExample(t *testing.T) {
	assert := assert.New(t)
	t.Setenv("SOURCE_CONNECTION_STRING", "Endpoint=sb://upstreamNamespace.servicebus.windows.net/;SharedAccessKeyName=k;SharedAccessKey=v")

	c := getConfigFromFilepath(t, filepath.Join(configurationDocsDir, "overview-full-example.hcl"))

	checkComponentForZeros(t, c.Data)
	checkComponentForZeros(t, c.Data.Relay)
	checkComponentForZeros(t, c.Data.Source)
	checkComponentForZeros(t, c.Data.Sentry)
	checkComponentForZeros(t, c.Data.Monitoring.Webhook)

	assert.Equal("stdout", c.Data.Sink.Use.Name)
	assert.Equal("statsd", c.Data.StatsReceiver.Receiver.Name)

	// Every numeric setting in the example is within range
	assert.Equal(c.Data.Relay, c.RelaySettings())
}
