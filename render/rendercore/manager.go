// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package rendercore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"go.formrender.dev/render/core"
	"go.formrender.dev/render/core/statejson"
	"go.formrender.dev/render/interop"
	"go.formrender.dev/render/metrics"
	"go.formrender.dev/render/record"
	"go.formrender.dev/render/taskqueue"
)

// Manager owns the render records of every client and drives the per-form
// status machines. It is safe for concurrent use.
//
// Lock order: mu before any record lock. mu is never held while a record
// executor or the render engine runs.
type Manager struct {
	engine      interop.RenderEngine
	sink        interop.MemorySink
	lookup      interop.BundleLookup
	metrics     metrics.Recorder
	parallelism int

	mu      sync.Mutex
	records map[string]*record.Record

	// critMu serializes the memory sink. It is taken before mu, never after.
	critMu sync.Mutex

	supplyMu sync.Mutex
	supply   interop.FormSupply

	status      *core.StatusCoordinator
	statusQueue *taskqueue.Queue

	configuration  atomic.Pointer[interop.Configuration]
	configQueue    *taskqueue.Queue
	quietInterval  time.Duration
	cfgMu          sync.Mutex
	pendingConfig  *interop.Configuration
	cachedConfig   *interop.Configuration
	lastApplied    time.Time
	screenOn       bool
	appliedConfigs atomic.Int64

	unlocked   atomic.Bool
	terminated atomic.Bool
}

func newManager(b *ManagerBuilder) *Manager {
	m := &Manager{
		engine:        b.engine,
		sink:          b.sink,
		lookup:        b.lookup,
		metrics:       b.recorder,
		parallelism:   b.parallelism,
		records:       make(map[string]*record.Record),
		statusQueue:   taskqueue.NewQueue("status"),
		configQueue:   taskqueue.NewQueue("configuration"),
		quietInterval: b.quietInterval,
		screenOn:      b.screenOn,
	}
	m.status = core.NewStatusCoordinator(m.statusQueue, b.recycleTimeout, m.onRecycleTimeout)

	config := b.configuration
	if config == nil {
		config = interop.NewConfiguration(nil)
	}
	m.configuration.Store(config)
	m.unlocked.Store(b.unlocked)
	return m
}

func (m *Manager) setSupply(supply interop.FormSupply) {
	m.supplyMu.Lock()
	defer m.supplyMu.Unlock()
	m.supply = supply
}

func (m *Manager) getSupply() interop.FormSupply {
	m.supplyMu.Lock()
	defer m.supplyMu.Unlock()
	return m.supply
}

func (m *Manager) checkRunning() error {
	if m.terminated.Load() {
		return ErrManagerShutdown
	}
	return nil
}

func validateCaller(params interop.RequestParams) error {
	if params.ClientID == "" || params.EventID == "" {
		return fmt.Errorf("%w: request carries no client id or event id", ErrBindProviderFailed)
	}
	return nil
}

func validateFormID(formID interop.FormID) error {
	if !formID.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidFormID, formID)
	}
	return nil
}

func (m *Manager) findRecord(clientID string) (*record.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, found := m.records[clientID]
	return r, found
}

func (m *Manager) snapshotRecords() []*record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]*record.Record, 0, len(m.records))
	for _, r := range m.records {
		res = append(res, r)
	}
	return res
}

func (m *Manager) findOrCreateRecord(clientID, bundleName string) (*record.Record, error) {
	if r, found := m.findRecord(clientID); found {
		return r, nil
	}

	bundle, err := m.lookup.LookupBundle(bundleName)
	if err != nil {
		return nil, fmt.Errorf("%w: bundle %q: %s", ErrBindProviderFailed, bundleName, err)
	}

	m.mu.Lock()
	if m.terminated.Load() {
		m.mu.Unlock()
		return nil, ErrManagerShutdown
	}
	r, found := m.records[clientID]
	if !found {
		r = record.New(clientID, bundle, m.engine, m.configuration.Load(), !m.unlocked.Load())
		m.records[clientID] = r
		log.WithField("clientID", clientID).WithField("bundleName", bundle.BundleName).Info("Render record created")
	}
	count := len(m.records)
	m.mu.Unlock()

	m.metrics.RecordRecords(count)
	return r, nil
}

// withRecord runs op on the client's record, creating the record when
// missing. A record retired concurrently is looked up again.
func (m *Manager) withRecord(clientID, bundleName string, op func(*record.Record) error) (*record.Record, error) {
	for {
		r, err := m.findOrCreateRecord(clientID, bundleName)
		if err != nil {
			return nil, err
		}
		err = op(r)
		if errors.Is(err, record.ErrRecordReleased) {
			log.WithField("clientID", clientID).Debug("Record retired concurrently, retrying")
			continue
		}
		return r, err
	}
}

// removeRecordIfEmpty retires r when it holds no form and runs no work.
func (m *Manager) removeRecordIfEmpty(clientID string, r *record.Record) bool {
	m.mu.Lock()
	if cur, found := m.records[clientID]; !found || cur != r || !r.TryRetire() {
		m.mu.Unlock()
		return false
	}
	delete(m.records, clientID)
	count := len(m.records)
	m.mu.Unlock()

	m.metrics.RecordRecords(count)
	if err := r.Release(); err != nil {
		log.WithError(err).WithField("clientID", clientID).Warn("Failed to release render record")
	}
	log.WithField("clientID", clientID).Info("Render record removed")
	return true
}

func (m *Manager) raiseCritical() {
	m.critMu.Lock()
	defer m.critMu.Unlock()

	if !m.sink.IsCritical() {
		m.sink.SetCritical(true)
		m.metrics.RecordCritical(true)
	}
}

// lowerCriticalIfIdle lowers the critical flag when no record has a visible form.
func (m *Manager) lowerCriticalIfIdle() {
	m.critMu.Lock()
	defer m.critMu.Unlock()

	for _, r := range m.snapshotRecords() {
		if !r.AllFormsInvisible() {
			return
		}
	}
	if m.sink.IsCritical() {
		m.sink.SetCritical(false)
		m.metrics.RecordCritical(false)
	}
}

func (m *Manager) replyRender(supply interop.FormSupply, formID interop.FormID, params interop.RequestParams, event interop.FormFsmEvent, err error) {
	if supply == nil {
		supply = m.getSupply()
	}
	if supply == nil {
		log.WithField("formID", formID).WithField("eventID", params.EventID).Warn("No form supply to acknowledge render")
		return
	}
	supply.OnRenderTaskDone(formID, interop.Reply{Params: params, Event: event, Code: ResultCodeOf(err)})
}

func (m *Manager) replyStop(supply interop.FormSupply, formID interop.FormID, params interop.RequestParams, event interop.FormFsmEvent, err error) {
	if supply == nil {
		supply = m.getSupply()
	}
	if supply == nil {
		log.WithField("formID", formID).WithField("eventID", params.EventID).Warn("No form supply to acknowledge stop")
		return
	}
	supply.OnStopRenderingTaskDone(formID, interop.Reply{Params: params, Event: event, Code: ResultCodeOf(err)})
}

// postStatus drives the form's status machine. Illegal events are logged by
// the coordinator and otherwise ignored.
func (m *Manager) postStatus(formID interop.FormID, event interop.FormFsmEvent) {
	_, _ = m.status.Post(formID, event)
}

func (m *Manager) beginStatus(formID interop.FormID, event interop.FormFsmEvent, params interop.RequestParams) error {
	if err := m.status.Begin(formID, event, params); err != nil {
		return fmt.Errorf("%w: %s on form %d in state %s", ErrInvalidState, event, formID, m.status.State(formID))
	}
	return nil
}

// recordError converts a record failure into an operation error.
func recordError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBindProviderFailed), errors.Is(err, ErrManagerShutdown):
		return err
	case errors.Is(err, record.ErrFormNotFound), errors.Is(err, record.ErrRecordReleased):
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	case errors.Is(err, record.ErrNothingToDetach):
		return fmt.Errorf("%w: %s", ErrInvalidParam, err)
	}
	return fmt.Errorf("%w: %s", ErrBackendFailure, err)
}

// RenderForm renders the form for the client named by params, or updates it
// when it is already rendered. The supply is acknowledged exactly once, even
// when the request is rejected. A valid supply becomes the active reply
// channel of the manager.
func (m *Manager) RenderForm(info interop.FormInfo, params interop.RequestParams, supply interop.FormSupply) error {
	if err := m.checkRunning(); err != nil {
		m.replyRender(supply, info.FormID, params, interop.RenderFormFail, err)
		return err
	}
	if err := validateCaller(params); err != nil {
		m.replyRender(supply, info.FormID, params, interop.RenderFormFail, err)
		return err
	}
	if err := validateFormID(info.FormID); err != nil {
		m.replyRender(supply, info.FormID, params, interop.RenderFormFail, err)
		return err
	}
	if supply != nil {
		m.setSupply(supply)
	}

	logger := log.WithField("formID", info.FormID).WithField("clientID", params.ClientID).WithField("eventID", params.EventID)
	if err := m.beginStatus(info.FormID, interop.RenderForm, params); err != nil {
		logger.WithError(err).Debug("Rendering without status transition")
	}

	m.raiseCritical()
	defer m.lowerCriticalIfIdle()

	deferred := false
	r, err := m.withRecord(params.ClientID, info.BundleName, func(r *record.Record) error {
		var err error
		deferred, err = r.Upsert(info, params.HostToken)
		return err
	})
	if err != nil {
		err = recordError(err)
		logger.WithError(err).Warn("Render failed")
		m.postStatus(info.FormID, interop.RenderFormFail)
		if r != nil {
			m.removeRecordIfEmpty(params.ClientID, r)
		}
		m.replyRender(supply, info.FormID, params, interop.RenderFormFail, err)
		return err
	}

	if deferred {
		logger.Info("Render deferred until unlock")
		m.replyRender(supply, info.FormID, params, interop.FsmEventNone, nil)
		return nil
	}

	m.postStatus(info.FormID, interop.RenderFormDone)
	logger.Debug("Form rendered")
	m.replyRender(supply, info.FormID, params, interop.RenderFormDone, nil)
	return nil
}

// StopRenderingForm detaches the host named by params from the form. The
// reply carries DELETE_FORM_FINISH when the form's surface was destroyed and
// DELETE_FORM_DONE when other hosts still display it.
func (m *Manager) StopRenderingForm(info interop.FormInfo, params interop.RequestParams, supply interop.FormSupply) error {
	if err := m.checkRunning(); err != nil {
		m.replyStop(supply, info.FormID, params, interop.FsmEventNone, err)
		return err
	}
	if err := validateCaller(params); err != nil {
		m.replyStop(supply, info.FormID, params, interop.FsmEventNone, err)
		return err
	}
	if err := validateFormID(info.FormID); err != nil {
		m.replyStop(supply, info.FormID, params, interop.FsmEventNone, err)
		return err
	}
	if info.CompID == "" && params.HostToken == "" {
		err := fmt.Errorf("%w: stop of form %d names no component or host", ErrInvalidParam, info.FormID)
		m.replyStop(supply, info.FormID, params, interop.FsmEventNone, err)
		return err
	}
	defer m.lowerCriticalIfIdle()

	logger := log.WithField("formID", info.FormID).WithField("clientID", params.ClientID).WithField("eventID", params.EventID)

	r, found := m.findRecord(params.ClientID)
	if !found {
		m.status.Forget(info.FormID)
		err := fmt.Errorf("%w: client %s has no render record", ErrNotFound, params.ClientID)
		m.replyStop(supply, info.FormID, params, interop.DeleteFormFinish, err)
		return err
	}

	if err := m.beginStatus(info.FormID, interop.DeleteForm, params); err != nil {
		logger.WithError(err).Debug("Stopping without status transition")
	}

	removed, err := r.Delete(info.FormID, info.CompID, params.HostToken)
	if err != nil && !errors.Is(err, record.ErrFormNotFound) && !errors.Is(err, record.ErrRecordReleased) &&
		!errors.Is(err, record.ErrNothingToDetach) {
		// the surface is gone from the record even when the engine failed to destroy it
		logger.WithError(err).Warn("Failed to destroy form surface")
		err = nil
	}
	if err != nil {
		m.status.Forget(info.FormID)
		err = recordError(err)
		m.replyStop(supply, info.FormID, params, interop.DeleteFormFinish, err)
		return err
	}

	event := interop.DeleteFormDone
	if removed {
		event = interop.DeleteFormFinish
	}
	m.postStatus(info.FormID, event)
	if removed {
		m.removeRecordIfEmpty(params.ClientID, r)
	}
	logger.WithField("event", event).Debug("Form stopped")
	m.replyStop(supply, info.FormID, params, event, nil)
	return nil
}

// ReleaseRenderer releases the component of a recycled form. An empty compID
// releases every component of the form. The client's record is removed once
// it is empty.
func (m *Manager) ReleaseRenderer(formID interop.FormID, compID, clientID string) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if err := validateFormID(formID); err != nil {
		return err
	}
	if clientID == "" {
		return fmt.Errorf("%w: no client id", ErrBindProviderFailed)
	}

	r, found := m.findRecord(clientID)
	if !found {
		return fmt.Errorf("%w: client %s has no render record", ErrNotFound, clientID)
	}

	if err := r.ReleaseComp(formID, compID); err != nil {
		return recordError(err)
	}
	m.postStatus(formID, interop.RecycleFormDone)
	m.removeRecordIfEmpty(clientID, r)
	m.lowerCriticalIfIdle()
	return nil
}

// CleanFormHost drops a dead host from every record. Records left empty are
// removed. It never fails.
func (m *Manager) CleanFormHost(host interop.HostToken) error {
	if host == "" {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(m.parallelism)
	for _, r := range m.snapshotRecords() {
		r := r
		g.Go(func() error {
			removed, err := r.HandleHostDied(host)
			if err != nil && !errors.Is(err, record.ErrRecordReleased) {
				log.WithError(err).WithField("clientID", r.ClientID()).Warn("Failed to clean dead host")
			}
			for _, formID := range removed {
				m.status.Forget(formID)
			}
			m.removeRecordIfEmpty(r.ClientID(), r)
			return nil
		})
	}
	_ = g.Wait()

	m.lowerCriticalIfIdle()
	return nil
}

// ReloadForm refreshes a batch of forms of one client. Every form of the batch
// is processed; the failures are combined into one error.
func (m *Manager) ReloadForm(infos []interop.FormInfo, params interop.RequestParams) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if params.ClientID == "" {
		return fmt.Errorf("%w: no client id", ErrBindProviderFailed)
	}

	r, found := m.findRecord(params.ClientID)
	if !found {
		return fmt.Errorf("%w: client %s has no render record", ErrNotFound, params.ClientID)
	}

	err := r.Reload(infos)
	if errors.Is(err, record.ErrRecordReleased) {
		return fmt.Errorf("%w: client %s has no render record", ErrNotFound, params.ClientID)
	}
	if err != nil {
		failed := multierr.Errors(err)
		log.WithError(err).WithField("clientID", params.ClientID).Warnf("Reload failed for %d of %d forms", len(failed), len(infos))
		return fmt.Errorf("%w: %d of %d forms failed: %s", ErrBackendFailure, len(failed), len(infos), err)
	}
	return nil
}

// OnUnlock renders the forms deferred until the device was unlocked and
// replays the configuration cached while the screen was off. Only the first
// call has an effect.
func (m *Manager) OnUnlock() error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if !m.unlocked.CompareAndSwap(false, true) {
		log.Debug("Already unlocked")
		return nil
	}
	log.Info("Device unlocked")

	var g errgroup.Group
	g.SetLimit(m.parallelism)
	for _, r := range m.snapshotRecords() {
		r := r
		g.Go(func() error {
			flushed, err := r.FlushDeferred()
			if err != nil && !errors.Is(err, record.ErrRecordReleased) {
				log.WithError(err).WithField("clientID", r.ClientID()).Warn("Failed to render deferred forms")
			}
			for _, formID := range flushed {
				m.postStatus(formID, interop.RenderFormDone)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.RunCachedConfigurationUpdated()
	return nil
}

// RecycleForm serializes the form's visual state and hands it to the active
// supply. The form must then be released with ReleaseRenderer before the
// recycle timeout expires, or the recycle is reported as failed.
func (m *Manager) RecycleForm(formID interop.FormID, params interop.RequestParams) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if err := validateFormID(formID); err != nil {
		return err
	}
	if err := validateCaller(params); err != nil {
		return err
	}

	r, found := m.findRecord(params.ClientID)
	if !found {
		return fmt.Errorf("%w: client %s has no render record", ErrNotFound, params.ClientID)
	}
	if err := m.beginStatus(formID, interop.RecycleForm, params); err != nil {
		return err
	}

	logger := log.WithField("formID", formID).WithField("clientID", params.ClientID).WithField("eventID", params.EventID)
	data, err := r.Recycle(formID)
	if err != nil {
		err = recordError(err)
		logger.WithError(err).Warn("Recycle failed")
		m.postStatus(formID, interop.RecycleFormFail)
		if supply := m.getSupply(); supply != nil {
			supply.OnRecycleFormFailed(formID, interop.Reply{Params: params, Event: interop.RecycleFormFail, Code: ResultCodeOf(err)})
		}
		return err
	}

	m.postStatus(formID, interop.RecycleDataDone)
	logger.WithField("bytes", len(data)).Debug("Form status captured")
	if supply := m.getSupply(); supply != nil {
		supply.OnRecycleForm(formID, data, interop.Reply{Params: params, Event: interop.RecycleDataDone, Code: interop.ResultOK})
	} else {
		logger.Warn("No form supply to hand recycled status to")
	}
	return nil
}

func (m *Manager) onRecycleTimeout(formID interop.FormID, reply interop.Reply) {
	m.metrics.RecordRecycleTimeout()
	supply := m.getSupply()
	if supply == nil {
		log.WithField("formID", formID).Warn("No form supply to report recycle timeout")
		return
	}
	supply.OnRecycleFormFailed(formID, reply)
}

// RecoverForm rebuilds the form's surface from the status data in params.
// restored is false when params carried no status data; the form is then
// rendered afresh, which is a warning rather than a failure.
func (m *Manager) RecoverForm(info interop.FormInfo, params interop.RequestParams) (restored bool, err error) {
	if err := m.checkRunning(); err != nil {
		return false, err
	}
	if err := validateFormID(info.FormID); err != nil {
		return false, err
	}
	if err := validateCaller(params); err != nil {
		return false, err
	}
	if err := m.beginStatus(info.FormID, interop.RecoverForm, params); err != nil {
		return false, err
	}

	m.raiseCritical()
	defer m.lowerCriticalIfIdle()

	logger := log.WithField("formID", info.FormID).WithField("clientID", params.ClientID).WithField("eventID", params.EventID)
	r, err := m.withRecord(params.ClientID, info.BundleName, func(r *record.Record) error {
		var err error
		restored, err = r.Recover(info, params.HostToken, params.StatusData, params.IsRecoverFormToHandleClickEvent)
		return err
	})
	if err != nil {
		err = recordError(err)
		logger.WithError(err).Warn("Recover failed")
		m.postStatus(info.FormID, interop.RecoverFormFail)
		if r != nil {
			m.removeRecordIfEmpty(params.ClientID, r)
		}
		return false, err
	}

	m.postStatus(info.FormID, interop.RecoverFormDone)
	if !restored {
		logger.Warn("Form recovered without status data")
	}
	return restored, nil
}

// SetVisibleChange flips the visibility of a form. Showing a form raises the
// critical flag; hiding one lowers it when nothing else is visible.
func (m *Manager) SetVisibleChange(formID interop.FormID, visible bool, clientID string) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if err := validateFormID(formID); err != nil {
		return err
	}
	r, found := m.findRecord(clientID)
	if clientID == "" || !found {
		return fmt.Errorf("%w: unknown client %q", ErrBindProviderFailed, clientID)
	}

	if visible {
		m.raiseCritical()
	}
	err := r.SetVisible(formID, visible)
	m.lowerCriticalIfIdle()

	if errors.Is(err, record.ErrRecordReleased) {
		return fmt.Errorf("%w: unknown client %q", ErrBindProviderFailed, clientID)
	}
	return recordError(err)
}

// UpdateFormSize resizes the form's surface.
func (m *Manager) UpdateFormSize(formID interop.FormID, width, height, borderWidth float64, clientID string) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if err := validateFormID(formID); err != nil {
		return err
	}
	r, found := m.findRecord(clientID)
	if !found {
		return fmt.Errorf("%w: client %q has no render record", ErrNotFound, clientID)
	}
	return recordError(r.UpdateSize(formID, width, height, borderWidth))
}

// FormState returns the status machine state of the form.
func (m *Manager) FormState(formID interop.FormID) string {
	return m.status.State(formID)
}

// RecordCount returns the number of clients with a render record.
func (m *Manager) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// HasForm reports whether the client's record holds the form.
func (m *Manager) HasForm(clientID string, formID interop.FormID) bool {
	r, found := m.findRecord(clientID)
	return found && r.HasForm(formID)
}

// IsCritical reports the memory-pressure signal.
func (m *Manager) IsCritical() bool {
	m.critMu.Lock()
	defer m.critMu.Unlock()
	return m.sink.IsCritical()
}

// InternalState returns the state of the manager for debugging purposes.
func (m *Manager) InternalState() statejson.InternalStateDescription {
	records := m.snapshotRecords()
	desc := statejson.InternalStateDescription{
		Records:       make([]statejson.RecordDescription, 0, len(records)),
		Forms:         m.status.Describe(),
		Critical:      m.IsCritical(),
		Unlocked:      m.unlocked.Load(),
		ScreenOn:      m.ScreenOn(),
		Configuration: m.Configuration().Items(),
	}
	for _, r := range records {
		desc.Records = append(desc.Records, r.Describe())
	}
	sort.Slice(desc.Records, func(i, j int) bool { return desc.Records[i].ClientID < desc.Records[j].ClientID })
	return desc
}

// Shutdown stops the background queues and releases every record. Every
// operation afterwards fails with ErrManagerShutdown.
func (m *Manager) Shutdown() error {
	if !m.terminated.CompareAndSwap(false, true) {
		return nil
	}
	log.Info("Shutting down render manager")

	m.configQueue.Stop()
	m.statusQueue.Stop()

	m.mu.Lock()
	records := m.records
	m.records = make(map[string]*record.Record)
	m.mu.Unlock()

	var errs error
	for _, r := range records {
		errs = multierr.Append(errs, r.Release())
	}

	m.critMu.Lock()
	if m.sink.IsCritical() {
		m.sink.SetCritical(false)
		m.metrics.RecordCritical(false)
	}
	m.critMu.Unlock()
	m.metrics.RecordRecords(0)
	return errs
}
