// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package rendercore

import (
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"go.formrender.dev/render/engine"
	"go.formrender.dev/render/interop"
	"go.formrender.dev/render/logging"
	"go.formrender.dev/render/memory"
	"go.formrender.dev/render/metrics"
)

const (
	defaultQuietInterval  = 1500 * time.Millisecond
	defaultRecycleTimeout = 3 * time.Second
	defaultParallelism    = 8
)

// DefaultBundleLookup answers every bundle as supporting dynamic forms.
type DefaultBundleLookup struct{}

func (DefaultBundleLookup) LookupBundle(bundleName string) (interop.BundleInfo, error) {
	return interop.BundleInfo{BundleName: bundleName, SupportsDynamic: true}, nil
}

type ManagerBuilder struct {
	engine         interop.RenderEngine
	sink           interop.MemorySink
	lookup         interop.BundleLookup
	recorder       metrics.Recorder
	quietInterval  time.Duration
	recycleTimeout time.Duration
	parallelism    int
	unlocked       bool
	screenOn       bool
	configuration  *interop.Configuration
}

func NewManagerBuilder() *ManagerBuilder {
	return &ManagerBuilder{
		engine:         engine.NewMemory(),
		sink:           &memory.Flag{},
		lookup:         DefaultBundleLookup{},
		recorder:       metrics.NoOp{},
		quietInterval:  defaultQuietInterval,
		recycleTimeout: defaultRecycleTimeout,
		parallelism:    defaultParallelism,
		screenOn:       true,
	}
}

func (b *ManagerBuilder) SetEngine(engine interop.RenderEngine) *ManagerBuilder {
	b.engine = engine
	return b
}

func (b *ManagerBuilder) SetMemorySink(sink interop.MemorySink) *ManagerBuilder {
	b.sink = sink
	return b
}

func (b *ManagerBuilder) SetBundleLookup(lookup interop.BundleLookup) *ManagerBuilder {
	b.lookup = lookup
	return b
}

func (b *ManagerBuilder) SetMetrics(recorder metrics.Recorder) *ManagerBuilder {
	if recorder == nil {
		recorder = metrics.NoOp{}
	}
	b.recorder = recorder
	return b
}

// SetQuietInterval sets the minimum time between two configuration
// propagations.
func (b *ManagerBuilder) SetQuietInterval(interval time.Duration) *ManagerBuilder {
	if interval < 0 {
		log.Warnf("Ignoring negative quiet interval %s", interval)
		return b
	}
	b.quietInterval = interval
	return b
}

func (b *ManagerBuilder) SetRecycleTimeout(timeout time.Duration) *ManagerBuilder {
	if timeout <= 0 {
		log.Warnf("Ignoring non-positive recycle timeout %s", timeout)
		return b
	}
	b.recycleTimeout = timeout
	return b
}

// SetParallelism bounds how many records a global operation touches at once.
func (b *ManagerBuilder) SetParallelism(n int) *ManagerBuilder {
	if n <= 0 {
		log.Warnf("Ignoring non-positive parallelism %d", n)
		return b
	}
	b.parallelism = n
	return b
}

// SetUnlocked starts the manager with the device already unlocked.
func (b *ManagerBuilder) SetUnlocked(unlocked bool) *ManagerBuilder {
	b.unlocked = unlocked
	return b
}

func (b *ManagerBuilder) SetScreenOn(on bool) *ManagerBuilder {
	b.screenOn = on
	return b
}

// SetConfiguration sets the configuration surfaces are created with before
// the first OnConfigurationUpdated.
func (b *ManagerBuilder) SetConfiguration(config *interop.Configuration) *ManagerBuilder {
	b.configuration = config
	return b
}

func (b *ManagerBuilder) Create() *Manager {
	return newManager(b)
}

func SetLogLevel(logLevel string) {
	if err := logging.SetLevel(logLevel); err != nil {
		log.WithError(err).Fatal("Failed to set log level. Valid log levels are:", log.AllLevels)
	}
	log.SetFormatter(&logging.InternalFormatter{})
}

func SetInternalLogOutput(w io.Writer) {
	logging.SetOutput(w)
}
