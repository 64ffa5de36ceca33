// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	// pprof imported for the side effect of registering its HTTP handlers
	_ "net/http/pprof"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/snowplow-devops/event-relay/cmd"
	"github.com/snowplow-devops/event-relay/config"
	"github.com/snowplow-devops/event-relay/pkg/health"
	"github.com/snowplow-devops/event-relay/pkg/models"
	"github.com/snowplow-devops/event-relay/pkg/monitoring"
	"github.com/snowplow-devops/event-relay/pkg/observer"
	"github.com/snowplow-devops/event-relay/pkg/relay"
	"github.com/snowplow-devops/event-relay/pkg/sink/sinkiface"
	stdinsource "github.com/snowplow-devops/event-relay/pkg/source/stdin"
)

const (
	appVersion   = cmd.AppVersion
	appName      = cmd.AppName
	appUsage     = "Relays events to a configured sink in size bounded batches"
	appCopyright = "(c) 2020-2022 Snowplow Analytics Ltd. All rights reserved."

	// roundTimeout bounds a single consumed round, including the one flushed
	// on shutdown
	roundTimeout = 30 * time.Second
)

// relayApp holds everything the commands share once configuration is loaded
type relayApp struct {
	cfg           *config.Config
	settings      *config.RelayConfig
	relay         *relay.Relay
	obs           *observer.Observer
	monitor       *monitoring.Monitoring
	sentryEnabled bool

	newSink func() (sinkiface.Sink, error)

	log *log.Entry
}

// payloadReader pushes payloads to handle until ctx is done
type payloadReader interface {
	Read(ctx context.Context, handle func(*models.Payload) error) error
}

// RunCli allows running application from cli
func RunCli() {
	sinkName := newChoiceValue(config.SinkNames)

	app := cli.NewApp()
	app.Name = appName
	app.Usage = appUsage
	app.Version = appVersion
	app.Copyright = appCopyright
	app.Compiled = time.Now().UTC()
	app.Authors = []cli.Author{
		{
			Name:  "Snowplow Analytics",
			Email: "support@snowplow.io",
		},
	}

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "env-file",
			Usage: "Load environment variables from a dotenv file before reading the configuration",
		},
		cli.GenericFlag{
			Name:  "sink, s",
			Value: sinkName,
			Usage: fmt.Sprintf("Override the configured sink; one of %s", strings.Join(config.SinkNames, ", ")),
		},
		cli.BoolFlag{
			Name:  "profile, p",
			Usage: "Enable application profiling endpoint on port 8080",
		},
	}

	var ra *relayApp
	sentryEnabled := false

	app.Before = func(c *cli.Context) error {
		var err error
		ra, err = newRelayApp(c.GlobalString("env-file"), sinkName.String())
		if err != nil {
			return err
		}
		sentryEnabled = ra.sentryEnabled

		if c.GlobalBool("profile") {
			go func() {
				if err := http.ListenAndServe("localhost:8080", nil); err != nil {
					log.WithError(err).Fatal("failed to start up the server")
				}
			}()
		}
		return nil
	}

	app.After = func(c *cli.Context) error {
		if ra != nil {
			ra.close()
		}
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:  "send",
			Usage: "Relay synthetic filler events",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "events, n", Usage: "Number of events to send (default from configuration)", Value: -1},
				cli.IntFlag{Name: "size", Usage: "Size of each event in KB (default from configuration)", Value: -1},
				cli.StringFlag{Name: "schedule", Usage: "Cron spec to keep sending on, e.g. '@every 1m'"},
			},
			Action: func(c *cli.Context) error {
				events := ra.flagValue("events", c.Int("events"), ra.settings.NumberOfEvents, relay.MaxNumberOfEvents)
				size := ra.flagValue("size", c.Int("size"), ra.settings.MessageSizeKB, relay.MaxMessageSizeKB)

				ctx, stop := signalContext()
				defer stop()

				if schedule := c.String("schedule"); schedule != "" {
					return ra.sendOnSchedule(ctx, schedule, events, size)
				}

				res, err := ra.sendSynthetic(ctx, events, size)
				if err != nil {
					return err
				}
				return res.Err()
			},
		},
		{
			Name:  "stdin",
			Usage: "Relay newline delimited events read from stdin",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "batch-lines", Usage: "Number of lines relayed per round", Value: stdinsource.DefaultBatchLines},
			},
			Action: func(c *cli.Context) error {
				ctx, stop := signalContext()
				defer stop()

				source := stdinsource.NewSource(c.Int("batch-lines"))
				return source.Read(ctx, func(payloads []*models.Payload) error {
					return ra.relayRound(ctx, payloads)
				})
			},
		},
		{
			Name:  "consume",
			Usage: "Relay events consumed from an upstream EventHub",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "flush-events", Usage: "Relay once this many events are buffered", Value: 500},
				cli.DurationFlag{Name: "flush-interval", Usage: "Relay buffered events at least this often", Value: 5 * time.Second},
			},
			Action: func(c *cli.Context) error {
				ctx, stop := signalContext()
				defer stop()

				return ra.consume(ctx, c.Int("flush-events"), c.Duration("flush-interval"))
			},
		},
	}

	app.ExitErrHandler = func(context *cli.Context, err error) {
		if err != nil {
			exitWithError(err, sentryEnabled)
		}
	}

	if err := app.Run(os.Args); err != nil {
		exitWithError(err, sentryEnabled)
	}
}

// newRelayApp loads the configuration and builds the shared relay and observer
func newRelayApp(envFile string, sinkOverride string) (*relayApp, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrap(err, "Failed to load env file")
		}
	}

	cfg, sentryEnabled, err := cmd.Init()
	if err != nil {
		return nil, err
	}

	if sinkOverride != "" && sinkOverride != cfg.Data.Sink.Use.Name {
		cfg.Data.Sink.Use = &config.Use{Name: sinkOverride}
	}

	tags, err := cfg.GetTags()
	if err != nil {
		return nil, err
	}

	sr, err := cfg.GetStatsReceiver(tags)
	if err != nil {
		return nil, err
	}

	obs := observer.New(sr, time.Second, 15*time.Second)
	obs.Start()

	monitor := cfg.GetMonitoring(appName, appVersion, tags)
	if monitor != nil {
		monitor.Start()
	}

	logger := log.WithFields(log.Fields{"app": appName, "version": appVersion})

	return &relayApp{
		cfg:           cfg,
		settings:      cfg.RelaySettings(),
		relay:         cfg.GetRelay(logger),
		obs:           obs,
		monitor:       monitor,
		sentryEnabled: sentryEnabled,
		newSink:       cfg.GetSink,
		log:           logger,
	}, nil
}

func (ra *relayApp) close() {
	ra.obs.Stop()
	if ra.monitor != nil {
		ra.monitor.Stop()
	}
	if ra.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

// relayRound sends one round of payloads through a freshly built sink
func (ra *relayApp) relayRound(ctx context.Context, payloads []*models.Payload) error {
	sink, err := ra.newSink()
	if err != nil {
		return err
	}

	res := ra.relay.Send(ctx, payloads, sink, ra.settings.MaxBatchBytes)
	ra.record(res)
	return res.Err()
}

// record hands res to the observer and alerts when nothing could be relayed
func (ra *relayApp) record(res *models.RelayResult) {
	ra.obs.RelayResult(res)
	if ra.monitor != nil && res.Accepted == 0 && res.BatchesFailed > 0 {
		ra.monitor.Alert(res.Err())
	}
}

// sendSynthetic relays events copies of a filler of sizeKB
func (ra *relayApp) sendSynthetic(ctx context.Context, events int, sizeKB int) (*models.RelayResult, error) {
	sink, err := ra.newSink()
	if err != nil {
		return nil, err
	}

	filler := ra.relay.GenerateFiller(sizeKB)
	payloads := make([]*models.Payload, events)
	for i := range payloads {
		payloads[i] = models.NewPayload(filler.Data)
	}

	res := ra.relay.Send(ctx, payloads, sink, ra.settings.MaxBatchBytes)
	ra.record(res)
	return res, nil
}

// sendOnSchedule keeps sending synthetic events on the cron schedule until ctx is done
func (ra *relayApp) sendOnSchedule(ctx context.Context, schedule string, events int, sizeKB int) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := ra.sendSynthetic(ctx, events, sizeKB); err != nil {
			ra.log.WithError(err).Error("Scheduled send failed")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "Invalid schedule '%s'", schedule)
	}

	ra.log.Infof("Sending %d events of %dKB on schedule '%s'", events, sizeKB, schedule)
	c.Start()
	<-ctx.Done()

	// Wait for a running send to finish
	<-c.Stop().Done()
	return nil
}

// consume relays upstream events in rounds until ctx is done
func (ra *relayApp) consume(ctx context.Context, flushEvents int, flushInterval time.Duration) error {
	source, err := ra.cfg.GetSource()
	if err != nil {
		return err
	}
	return ra.consumeFrom(ctx, source, flushEvents, flushInterval)
}

// consumeFrom buffers what source reads and relays it in rounds. Rounds run
// on a context which ctx being done does not cancel, so the round flushed on
// shutdown still reaches the sink.
func (ra *relayApp) consumeFrom(ctx context.Context, source payloadReader, flushEvents int, flushInterval time.Duration) error {
	if flushEvents < 1 {
		ra.log.Warn((&models.InvalidParameterError{Name: "flush-events", Value: strconv.Itoa(flushEvents), Default: defaultFlushEvents}).Error())
		flushEvents = defaultFlushEvents
	}
	if flushInterval <= 0 {
		ra.log.Warnf("invalid flush-interval parameter \"%s\"; using default value of %s", flushInterval, defaultFlushInterval)
		flushInterval = defaultFlushInterval
	}

	roundCtx := context.WithoutCancel(ctx)
	buffer := newFlushBuffer(flushEvents, func(payloads []*models.Payload) {
		rctx, cancel := context.WithTimeout(roundCtx, roundTimeout)
		defer cancel()

		if err := ra.relayRound(rctx, payloads); err != nil {
			ra.log.WithError(err).Error("Failed to relay consumed events")
		}
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	flushed := make(chan struct{})
	go func() {
		buffer.Run(runCtx, flushInterval)
		close(flushed)
	}()

	health.SetHealthy()
	err := source.Read(ctx, buffer.Add)
	health.SetUnhealthy()

	stop()
	<-flushed
	return err
}

// flagValue returns def for a flag left unset, and def with a warning for a
// value outside [0, max]
func (ra *relayApp) flagValue(name string, value int, def int, max int) int {
	if value < 0 {
		return def
	}
	v, err := relay.CheckIntParameter(name, value, def, max)
	if err != nil {
		ra.log.Warn(err.Error())
	}
	return v
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitWithError will ensure we log the error and leave time for Sentry to flush
func exitWithError(err error, flushSentry bool) {
	log.WithFields(log.Fields{"error": err}).Error(err)
	if flushSentry {
		sentry.Flush(2 * time.Second)
	}
	os.Exit(1)
}
