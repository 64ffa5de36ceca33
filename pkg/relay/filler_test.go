// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package relay

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

var tupleRegex = regexp.MustCompile(`^Measurement(\d+):(\d{1,2})$`)

func TestGenerateFiller_WellFormed(t *testing.T) {
	assert := assert.New(t)

	r, _ := newTestRelay(&Options{RandSource: rand.NewSource(1)})
	payload := r.GenerateFiller(2)

	data := string(payload.Data)
	assert.True(strings.HasSuffix(data, ";"))

	tuples := strings.Split(strings.TrimSuffix(data, ";"), ";")
	assert.Len(tuples, 2*1024)

	for i, tuple := range tuples {
		m := tupleRegex.FindStringSubmatch(tuple)
		if !assert.NotNil(m, tuple) {
			continue
		}
		assert.Equal(fmt.Sprint(i), m[1])
	}
}

func TestGenerateFiller_Deterministic(t *testing.T) {
	assert := assert.New(t)

	r1, _ := newTestRelay(&Options{RandSource: rand.NewSource(42)})
	r2, _ := newTestRelay(&Options{RandSource: rand.NewSource(42)})

	assert.Equal(r1.GenerateFiller(1).Data, r2.GenerateFiller(1).Data)
}

func TestGenerateFiller_EqualShape(t *testing.T) {
	assert := assert.New(t)

	r, _ := newTestRelay(nil)
	first := string(r.GenerateFiller(1).Data)
	second := string(r.GenerateFiller(1).Data)

	assert.Equal(strings.Count(first, ";"), strings.Count(second, ";"))

	// Only the random values may differ, each by at most one digit per tuple
	diff := len(first) - len(second)
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(diff, 1024)
}

func TestGenerateFiller_NonPositive(t *testing.T) {
	assert := assert.New(t)

	r, _ := newTestRelay(nil)
	assert.Equal(0, r.GenerateFiller(0).Size())
	assert.Equal(0, r.GenerateFiller(-3).Size())
}

func TestGenerateFiller_Concurrent(t *testing.T) {
	assert := assert.New(t)

	r, _ := newTestRelay(nil)

	var wg sync.WaitGroup
	sizes := make([]int, 8)
	for i := range sizes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sizes[i] = strings.Count(string(r.GenerateFiller(1).Data), ";")
		}(i)
	}
	wg.Wait()

	for _, s := range sizes {
		assert.Equal(1024, s)
	}
}
