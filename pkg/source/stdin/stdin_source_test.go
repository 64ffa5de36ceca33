// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package stdinsource

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

func collect(rounds *[][]string) func([]*models.Payload) error {
	return func(payloads []*models.Payload) error {
		var round []string
		for _, p := range payloads {
			round = append(round, string(p.Data))
		}
		*rounds = append(*rounds, round)
		return nil
	}
}

func TestStdinSource_ReadSuccess(t *testing.T) {
	assert := assert.New(t)

	tmpfile, err := os.CreateTemp("", "example")
	assert.Nil(err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.Write([]byte("Hello World!"))
	assert.Nil(err)
	_, err = tmpfile.Seek(0, 0)
	assert.Nil(err)

	oldStdin := os.Stdin
	defer func() { os.Stdin = oldStdin }()
	os.Stdin = tmpfile

	source := NewSource(1)
	assert.Equal("stdin", source.GetID())
	defer source.Stop()

	var rounds [][]string
	assert.Nil(source.Read(context.Background(), collect(&rounds)))
	assert.Equal([][]string{{"Hello World!"}}, rounds)
}

func TestStdinSource_Rounds(t *testing.T) {
	assert := assert.New(t)

	source := newSourceWithReader(strings.NewReader("a\nb\n\nc\nd\ne\n"), 2)

	var rounds [][]string
	assert.Nil(source.Read(context.Background(), collect(&rounds)))
	assert.Equal([][]string{{"a", "b"}, {"c", "d"}, {"e"}}, rounds)
}

func TestStdinSource_HandlerErrorDoesNotStop(t *testing.T) {
	assert := assert.New(t)

	source := newSourceWithReader(strings.NewReader("a\nb\nc\n"), 1)

	calls := 0
	err := source.Read(context.Background(), func([]*models.Payload) error {
		calls++
		return errors.New("sink down")
	})
	assert.Nil(err)
	assert.Equal(3, calls)
}

func TestStdinSource_DefaultBatchLines(t *testing.T) {
	source := newSourceWithReader(strings.NewReader(""), 0)
	assert.Equal(t, DefaultBatchLines, source.batchLines)
}

func TestStdinSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := newSourceWithReader(strings.NewReader("a\nb\n"), 1)

	var rounds [][]string
	assert.Nil(t, source.Read(ctx, collect(&rounds)))
	assert.Empty(t, rounds)
}
