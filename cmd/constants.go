// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package cmd

const (
	// AppVersion is the current version of the relay
	AppVersion = "0.1.0"

	// AppName is the name of the application to use in logging / places that require the artifact
	AppName = "event-relay"
)
