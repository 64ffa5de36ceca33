// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2020-2022 Snowplow Analytics Ltd. All rights reserved.

package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/event-relay/cmd"
)

const defaultPort = "8080"

func main() {
	cfg, sentryEnabled, err := cmd.Init()
	if err != nil {
		exitWithError(err, sentryEnabled)
	}
	if sentryEnabled {
		defer sentry.Flush(2 * time.Second)
	}

	trigger, err := cmd.NewTrigger(cfg)
	if err != nil {
		exitWithError(err, sentryEnabled)
	}
	defer trigger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ServeCustomHandler(ctx, listenAddr(), trigger); err != nil {
		exitWithError(err, sentryEnabled)
	}
}

// listenAddr returns the address the functions host expects the handler on
func listenAddr() string {
	port, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT")
	if !ok || port == "" {
		port = defaultPort
	}
	return net.JoinHostPort("", port)
}

// exitWithError will ensure we log the error and leave time for Sentry to flush
func exitWithError(err error, flushSentry bool) {
	log.WithFields(log.Fields{"error": err}).Error(err)
	if flushSentry {
		sentry.Flush(2 * time.Second)
	}
	os.Exit(1)
}
