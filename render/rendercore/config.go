// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package rendercore

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.formrender.dev/render/interop"
	"go.formrender.dev/render/record"
)

const applyConfigurationTask = "apply-configuration"

// Configuration returns the last applied configuration.
func (m *Manager) Configuration() *interop.Configuration {
	return m.configuration.Load()
}

// ScreenOn reports whether the display is on.
func (m *Manager) ScreenOn() bool {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	return m.screenOn
}

// OnConfigurationUpdated propagates config to every record. Propagations are
// at least the quiet interval apart: an update arriving sooner is deferred and
// merged with any other update deferred in the same window. While the screen
// is off the update is cached and replayed when the screen comes back on or
// the device is unlocked.
func (m *Manager) OnConfigurationUpdated(config *interop.Configuration) {
	if m.terminated.Load() {
		return
	}

	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	if !m.screenOn {
		m.cachedConfig = m.cachedConfig.Merge(config)
		log.WithField("keys", config.Keys()).Debug("Screen off, configuration cached")
		return
	}
	m.scheduleConfigurationUnsafe(config)
}

// SetScreenOn records the display power state. Turning the screen on replays
// the configuration cached while it was off.
func (m *Manager) SetScreenOn(on bool) {
	m.cfgMu.Lock()
	m.screenOn = on
	m.cfgMu.Unlock()

	log.WithField("screenOn", on).Debug("Screen state changed")
	if on {
		m.RunCachedConfigurationUpdated()
	}
}

// RunCachedConfigurationUpdated schedules the configuration cached while the
// screen was off. The cache is taken once, so concurrent triggers replay it
// a single time. Nothing happens while the screen is still off.
func (m *Manager) RunCachedConfigurationUpdated() {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	if !m.screenOn || m.cachedConfig == nil {
		return
	}
	cached := m.cachedConfig
	m.cachedConfig = nil
	log.WithField("keys", cached.Keys()).Info("Replaying cached configuration")
	m.scheduleConfigurationUnsafe(cached)
}

func (m *Manager) scheduleConfigurationUnsafe(config *interop.Configuration) {
	m.pendingConfig = m.pendingConfig.Merge(config)

	var delay time.Duration
	if !m.lastApplied.IsZero() {
		if elapsed := time.Since(m.lastApplied); elapsed < m.quietInterval {
			delay = m.quietInterval - elapsed
		}
	}

	if err := m.configQueue.Schedule(applyConfigurationTask, delay, m.applyPendingConfiguration); err != nil {
		log.WithError(err).Warn("Failed to schedule configuration update")
	}
}

// applyPendingConfiguration runs on the configuration queue.
func (m *Manager) applyPendingConfiguration() {
	m.cfgMu.Lock()
	pending := m.pendingConfig
	m.pendingConfig = nil
	if pending == nil {
		m.cfgMu.Unlock()
		return
	}
	current := m.configuration.Load()
	merged := current.Merge(pending)
	if merged.Equal(current) {
		m.cfgMu.Unlock()
		log.Debug("Configuration unchanged")
		return
	}
	m.configuration.Store(merged)
	m.lastApplied = time.Now()
	m.cfgMu.Unlock()

	m.propagateConfiguration(merged)
	m.appliedConfigs.Add(1)
	m.metrics.RecordConfigurationApplied()
}

func (m *Manager) propagateConfiguration(config *interop.Configuration) {
	records := m.snapshotRecords()

	var g errgroup.Group
	g.SetLimit(m.parallelism)
	for _, r := range records {
		r := r
		g.Go(func() error {
			err := r.ApplyConfiguration(config)
			if err != nil && !errors.Is(err, record.ErrRecordReleased) {
				log.WithError(err).WithField("clientID", r.ClientID()).Warn("Failed to apply configuration")
			}
			return nil
		})
	}
	_ = g.Wait()

	log.WithField("records", len(records)).WithField("keys", config.Keys()).Info("Configuration applied")
}
