// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package common

import (
	"fmt"
	"strings"
)

// WithEntityPath appends the EventHub name to a namespace level connection string
func WithEntityPath(connectionString string, eventHubName string) string {
	if strings.Contains(strings.ToLower(connectionString), "entitypath=") {
		return connectionString
	}
	return fmt.Sprintf("%s;EntityPath=%s", strings.TrimSuffix(connectionString, ";"), eventHubName)
}

// NamespaceFromConnectionString extracts "ns" from "Endpoint=sb://ns.servicebus.windows.net/;..."
func NamespaceFromConnectionString(connectionString string) string {
	for _, part := range strings.Split(connectionString, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || !strings.EqualFold(strings.TrimSpace(kv[0]), "Endpoint") {
			continue
		}
		host := strings.TrimPrefix(strings.TrimSpace(kv[1]), "sb://")
		return strings.SplitN(host, ".", 2)[0]
	}
	return ""
}
