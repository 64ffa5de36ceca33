// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Retry provides the ability to exponentially retry the execution of a function.
//
// The wait between attempts grows by half a random jitter and then doubles;
// a cancelled context stops any further attempt.
func Retry(ctx context.Context, logger *log.Entry, attempts int, sleep time.Duration, prefix string, f func() error) error {
	err := f()
	if err == nil {
		return nil
	}

	if attempts--; attempts > 0 {
		logger.Warnf("Retrying func (attempts: %d): %s: %s", attempts, prefix, err)

		if sleep > 0 {
			jitter := time.Duration(rand.Int63n(int64(sleep)))
			sleep = sleep + jitter/2
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(err, prefix)
		case <-time.After(sleep):
		}
		return Retry(ctx, logger, attempts, 2*sleep, prefix, f)
	}
	return errors.Wrap(err, prefix)
}
