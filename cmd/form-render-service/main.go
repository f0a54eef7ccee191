// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"go.formrender.dev/render/memory"
	"go.formrender.dev/render/metrics"
	"go.formrender.dev/render/rendercore"
	"go.formrender.dev/render/rendercore/standalone"
)

type options struct {
	LogLevel       string        `long:"log-level" env:"FORM_RENDER_LOG_LEVEL" default:"info" description:"log level"`
	Listen         string        `long:"listen" env:"FORM_RENDER_LISTEN" default:"0.0.0.0:8080" description:"address of the HTTP API"`
	MaxInflight    int64         `long:"max-inflight" env:"FORM_RENDER_MAX_INFLIGHT" default:"64" description:"lifecycle requests served at once"`
	Parallelism    int           `long:"parallelism" env:"FORM_RENDER_PARALLELISM" default:"8" description:"records touched at once by a global operation"`
	QuietInterval  time.Duration `long:"quiet-interval" env:"FORM_RENDER_QUIET_INTERVAL" default:"1500ms" description:"minimum gap between two configuration propagations"`
	RecycleTimeout time.Duration `long:"recycle-timeout" env:"FORM_RENDER_RECYCLE_TIMEOUT" default:"3s" description:"time allowed between recycling a form and releasing its renderer"`
	Unlocked       bool          `long:"unlocked" env:"FORM_RENDER_UNLOCKED" description:"start as if the device was already unlocked"`
	MetricsPrefix  string        `long:"metrics-namespace" env:"FORM_RENDER_METRICS_NAMESPACE" default:"formrender" description:"namespace of exported metrics"`
}

func main() {
	// More frequent GC reduces the tail latencies, equivalent to export GOGC=33
	debug.SetGCPercent(33)

	opts := getCLIArgs()
	rendercore.SetInternalLogOutput(os.Stderr)
	rendercore.SetLogLevel(opts.LogLevel)

	collector := metrics.NewCollector(opts.MetricsPrefix)
	manager := rendercore.NewManagerBuilder().
		SetMemorySink(memory.NewReportingSink(&memory.Flag{})).
		SetMetrics(collector).
		SetQuietInterval(opts.QuietInterval).
		SetRecycleTimeout(opts.RecycleTimeout).
		SetParallelism(opts.Parallelism).
		SetUnlocked(opts.Unlocked).
		Create()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	router := standalone.NewHTTPRouter(manager, standalone.NewEventLog(), collector.Handler(), opts.MaxInflight, cancel)
	if err := startHTTPServer(ctx, opts.Listen, router); err != nil {
		log.WithError(err).Error("HTTP server stopped")
	}

	if err := manager.Shutdown(); err != nil {
		log.WithError(err).Warn("Render manager shut down with errors")
	}
	log.Info("Form render service stopped")
}

func getCLIArgs() options {
	var opts options
	if _, err := parseOptions(&opts, os.Args); err != nil {
		log.WithError(err).Fatal("Failed to parse command line arguments:", os.Args)
	}
	return opts
}

func parseOptions(opts *options, args []string) ([]string, error) {
	parser := flags.NewParser(opts, flags.IgnoreUnknown)
	return parser.ParseArgs(args)
}
