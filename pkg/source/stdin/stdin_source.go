// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package stdinsource

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/models"
)

// DefaultBatchLines is the number of lines handed over per round
const DefaultBatchLines = 500

// Source reads newline delimited payloads
type Source struct {
	reader     io.Reader
	batchLines int

	log *log.Entry
}

// NewSource creates a new source reading from stdin
func NewSource(batchLines int) *Source {
	return newSourceWithReader(os.Stdin, batchLines)
}

// newSourceWithReader allows the user to provide any reader in place of stdin
func newSourceWithReader(reader io.Reader, batchLines int) *Source {
	if batchLines <= 0 {
		batchLines = DefaultBatchLines
	}

	return &Source{
		reader:     reader,
		batchLines: batchLines,
		log:        log.WithFields(log.Fields{"source": "stdin"}),
	}
}

// Read will execute until CTRL + D is pressed, EOF is reached or the context is done.
// Lines are passed to handle in rounds of at most batchLines payloads; empty lines are skipped.
func (ss *Source) Read(ctx context.Context, handle func([]*models.Payload) error) error {
	ss.log.Infof("Reading messages from 'stdin', scanning until EOF detected (Note: Press 'CTRL + D' to exit)")

	flush := func(round []*models.Payload) {
		if len(round) == 0 {
			return
		}
		if err := handle(round); err != nil {
			ss.log.WithFields(log.Fields{"error": err}).Error(err)
		}
	}

	var round []*models.Payload
	scanner := bufio.NewScanner(ss.reader)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		line := scanner.Text()
		if line == "" {
			continue
		}
		round = append(round, models.NewPayload([]byte(line)))

		if len(round) >= ss.batchLines {
			flush(round)
			round = nil
		}
	}
	flush(round)

	if scanner.Err() != nil {
		return errors.Wrap(scanner.Err(), "Failed to read from stdin scanner")
	}
	return nil
}

// Stop will halt the reader processing more events
func (ss *Source) Stop() {
	ss.log.Warn("Press CTRL + D to exit!")
}

// GetID returns the identifier for this source
func (ss *Source) GetID() string {
	return "stdin"
}
