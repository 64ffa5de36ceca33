// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package observer

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/pkg/models"
	"github.com/snowplow-devops/event-relay/pkg/statsreceiver/statsreceiveriface"
)

// Observer aggregates the results of many Send calls and reports them
// once per report interval to the log and the optional stats receiver
type Observer struct {
	statsClient    statsreceiveriface.StatsReceiver
	exitSignal     chan struct{}
	stopDone       chan struct{}
	relayChan      chan *models.RelayResult
	timeout        time.Duration
	reportInterval time.Duration
	isRunning      bool

	log *log.Entry
}

// New builds a new observer to be used to gather telemetry about relayed batches
func New(statsClient statsreceiveriface.StatsReceiver, timeout time.Duration, reportInterval time.Duration) *Observer {
	return &Observer{
		statsClient:    statsClient,
		exitSignal:     make(chan struct{}),
		stopDone:       make(chan struct{}),
		relayChan:      make(chan *models.RelayResult, 1000),
		timeout:        timeout,
		reportInterval: reportInterval,
		log:            log.WithFields(log.Fields{"name": "Observer"}),
		isRunning:      false,
	}
}

// Start launches a goroutine which processes relay results
func (o *Observer) Start() {
	if o.isRunning {
		o.log.Warn("Observer is already running")
		return
	}
	o.isRunning = true

	go func() {
		reportTime := time.Now().UTC().Add(o.reportInterval)
		buffer := &models.RelayResult{}

	ObserverLoop:
		for {
			select {
			case <-o.exitSignal:
				o.log.Warn("Received exit signal, shutting down Observer ...")

				// Drain anything pushed before Stop
				for len(o.relayChan) > 0 {
					buffer = buffer.Append(<-o.relayChan)
				}
				o.report(buffer)

				o.isRunning = false
				break ObserverLoop
			case res := <-o.relayChan:
				buffer = buffer.Append(res)
			case <-time.After(o.timeout):
				o.log.Debugf("Observer timed out after (%v) waiting for result", o.timeout)
			}

			if time.Now().UTC().After(reportTime) {
				o.report(buffer)

				reportTime = time.Now().UTC().Add(o.reportInterval)
				buffer = &models.RelayResult{}
			}
		}
		o.stopDone <- struct{}{}
	}()
}

func (o *Observer) report(buffer *models.RelayResult) {
	o.log.Infof(buffer.String())
	if o.statsClient != nil {
		o.statsClient.Send(buffer)
	}
}

// Stop issues a signal to halt observer processing and waits for the final report
func (o *Observer) Stop() {
	o.log.Info("Observer Stop() called")
	if o.isRunning {
		o.exitSignal <- struct{}{}
		<-o.stopDone
	}
}

// RelayResult pushes the result of a Send onto a channel for processing
// by the observer
func (o *Observer) RelayResult(r *models.RelayResult) {
	o.relayChan <- r
}
