// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package testutil

import (
	"math/rand"
	"strings"
	"time"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

const charset = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	seededRand *rand.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// GenRandomString can produce a random string of any provided length which is
// useful for testing situations that might have byte limitations
func GenRandomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seededRand.Intn(len(charset))]
	}
	return string(b)
}

// GetTestPayloads will return count payloads carrying the same body
func GetTestPayloads(count int, body string) []*models.Payload {
	var payloads []*models.Payload
	for i := 0; i < count; i++ {
		payloads = append(payloads, models.NewPayload([]byte(body)))
	}
	return payloads
}

// GetTestPayloadsOfSizes returns one payload per size, each filled with a
// single repeated letter so order can be checked from the data
func GetTestPayloadsOfSizes(sizes ...int) []*models.Payload {
	payloads := make([]*models.Payload, len(sizes))
	for i, size := range sizes {
		payloads[i] = models.NewPayload([]byte(strings.Repeat(string(charset[i%26]), size)))
	}
	return payloads
}
