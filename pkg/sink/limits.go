// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package sink

// capMinusOverhead returns the payload bytes left in limit after overhead,
// 0 when limit is unset and never less than 1 otherwise
func capMinusOverhead(limit int, overhead int) int {
	if limit <= 0 {
		return 0
	}
	if limit-overhead < 1 {
		return 1
	}
	return limit - overhead
}
