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

// GenerateFiller builds a synthetic payload of sizeInKB*1024 tuples of the
// form "Measurement<i>:<n>;" where n is drawn from [0,100)
func (r *Relay) GenerateFiller(sizeInKB int) *models.Payload {
	if sizeInKB <= 0 {
		return models.NewPayload([]byte{})
	}

	tuples := sizeInKB * 1024

	var sb strings.Builder
	sb.Grow(tuples * 18)

	r.randMu.Lock()
	for i := 0; i < tuples; i++ {
		sb.WriteString("Measurement")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(r.rand.Intn(100)))
		sb.WriteByte(';')
	}
	r.randMu.Unlock()

	return models.NewPayload([]byte(sb.String()))
}
