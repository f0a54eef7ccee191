// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package record holds the forms rendered for one client.
package record

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"go.formrender.dev/render/core/statejson"
	"go.formrender.dev/render/interop"
	"go.formrender.dev/render/taskqueue"
)

// formView is one component of a host displaying the form. Either side may
// be unknown when the request did not name it.
type formView struct {
	host interop.HostToken
	comp string
}

// matches reports whether a stop naming comp and host detaches v. An empty
// side of the request, or of the view, matches anything.
func (v formView) matches(comp string, host interop.HostToken) bool {
	compMatch := comp == "" || v.comp == "" || v.comp == comp
	hostMatch := host == "" || v.host == "" || v.host == host
	return compMatch && hostMatch
}

type formEntry struct {
	info    interop.FormInfo
	surface interop.SurfaceHandle
	dynamic bool
	views   map[formView]struct{}
	visible bool
}

func newFormEntry(info interop.FormInfo, surface interop.SurfaceHandle, dynamic bool) *formEntry {
	return &formEntry{
		info:    info,
		surface: surface,
		dynamic: dynamic,
		views:   make(map[formView]struct{}),
		visible: info.Visible,
	}
}

func (f *formEntry) addView(host interop.HostToken, compID string) {
	f.views[formView{host: host, comp: compID}] = struct{}{}
}

// detach drops the views matched by comp and host and returns how many went.
func (f *formEntry) detach(comp string, host interop.HostToken) int {
	n := 0
	for v := range f.views {
		if v.matches(comp, host) {
			delete(f.views, v)
			n++
		}
	}
	return n
}

// detachHost drops the views owned by host.
func (f *formEntry) detachHost(host interop.HostToken) bool {
	held := false
	for v := range f.views {
		if v.host == host {
			delete(f.views, v)
			held = true
		}
	}
	return held
}

// detachComp drops the views of compID, or every view when compID is empty.
func (f *formEntry) detachComp(compID string) {
	for v := range f.views {
		if compID == "" || v.comp == compID {
			delete(f.views, v)
		}
	}
}

// comps returns the named components, sorted.
func (f *formEntry) comps() []string {
	seen := make(map[string]struct{}, len(f.views))
	res := make([]string, 0, len(f.views))
	for v := range f.views {
		if _, dup := seen[v.comp]; v.comp == "" || dup {
			continue
		}
		seen[v.comp] = struct{}{}
		res = append(res, v.comp)
	}
	sort.Strings(res)
	return res
}

func (f *formEntry) hostCount() int {
	seen := make(map[interop.HostToken]struct{}, len(f.views))
	for v := range f.views {
		if v.host != "" {
			seen[v.host] = struct{}{}
		}
	}
	return len(seen)
}

type deferredRender struct {
	info interop.FormInfo
	host interop.HostToken
}

// Record owns the render surfaces of one client. Every engine call on its
// surfaces runs on the record's private executor. mu guards the bookkeeping
// maps and is never held while the engine is called.
type Record struct {
	clientID        string
	bundleName      string
	supportsDynamic bool
	engine          interop.RenderEngine
	exec            *taskqueue.Executor

	mu       sync.RWMutex
	forms    map[interop.FormID]*formEntry
	deferred map[interop.FormID]deferredRender
	config   *interop.Configuration
	locked   bool
	inflight int
	released bool

	releaseOnce sync.Once
	releaseErr  error
}

// New creates a record. locked tells whether the device is still locked, in
// which case renders requiring unlock are deferred until FlushDeferred.
func New(clientID string, bundle interop.BundleInfo, engine interop.RenderEngine, config *interop.Configuration, locked bool) *Record {
	return &Record{
		clientID:        clientID,
		bundleName:      bundle.BundleName,
		supportsDynamic: bundle.SupportsDynamic,
		engine:          engine,
		exec:            taskqueue.NewExecutor("record-" + clientID),
		forms:           make(map[interop.FormID]*formEntry),
		deferred:        make(map[interop.FormID]deferredRender),
		config:          config,
		locked:          locked,
	}
}

// ClientID returns the client owning the record.
func (r *Record) ClientID() string {
	return r.clientID
}

// do runs fn on the record executor. The in-flight counter keeps the record
// from being retired while fn is queued or running.
func (r *Record) do(fn func() error) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return ErrRecordReleased
	}
	r.inflight++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inflight--
		r.mu.Unlock()
	}()

	return r.exec.Do(fn)
}

func (r *Record) surfaceContext(info interop.FormInfo, clickOnly bool) interop.SurfaceContext {
	r.mu.RLock()
	config := r.config
	r.mu.RUnlock()

	return interop.SurfaceContext{
		ClientID:         r.clientID,
		BundleName:       r.bundleName,
		Configuration:    config,
		IsDynamic:        info.IsDynamic && r.supportsDynamic,
		HandleClickEvent: clickOnly,
	}
}

func (r *Record) lookup(formID interop.FormID) (*formEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, found := r.forms[formID]
	return entry, found
}

// Upsert renders the form, or updates its surface when the form is already
// rendered. Calling Upsert again with the same form and host is idempotent.
// deferred is true when the render waits for the device to be unlocked.
func (r *Record) Upsert(info interop.FormInfo, host interop.HostToken) (deferred bool, err error) {
	err = r.do(func() error {
		r.mu.Lock()
		if r.locked && info.RequiresUnlock {
			r.deferred[info.FormID] = deferredRender{info: info, host: host}
			r.mu.Unlock()
			deferred = true
			return nil
		}
		r.mu.Unlock()
		return r.upsertUnsafe(info, host)
	})
	return
}

// upsertUnsafe must run on the executor.
func (r *Record) upsertUnsafe(info interop.FormInfo, host interop.HostToken) error {
	entry, found := r.lookup(info.FormID)
	if found {
		if err := r.engine.Update(entry.surface, info); err != nil {
			return engineError("update", info.FormID, err)
		}
		r.mu.Lock()
		entry.info = info
		entry.visible = info.Visible
		entry.addView(host, info.CompID)
		r.mu.Unlock()
		return nil
	}

	ctx := r.surfaceContext(info, false)
	handle, err := r.engine.CreateSurface(info, ctx)
	if err != nil {
		return engineError("create", info.FormID, err)
	}

	entry = newFormEntry(info, handle, ctx.IsDynamic)
	entry.addView(host, info.CompID)

	r.mu.Lock()
	r.forms[info.FormID] = entry
	r.mu.Unlock()
	return nil
}

func (r *Record) destroyUnsafe(formID interop.FormID, entry *formEntry) error {
	r.mu.Lock()
	delete(r.forms, formID)
	r.mu.Unlock()
	return engineError("destroy", formID, r.engine.Destroy(entry.surface))
}

// Delete detaches the views matching compID and host from the form. A stop
// naming only a component detaches it from every host; one naming only a host
// detaches every component of that host. The surface is destroyed once no view
// is left; formRemoved reports that.
func (r *Record) Delete(formID interop.FormID, compID string, host interop.HostToken) (formRemoved bool, err error) {
	if compID == "" && host == "" {
		return false, fmt.Errorf("%w: form %d", ErrNothingToDetach, formID)
	}
	err = r.do(func() error {
		r.mu.Lock()
		_, wasDeferred := r.deferred[formID]
		delete(r.deferred, formID)
		entry, found := r.forms[formID]
		if !found {
			r.mu.Unlock()
			if wasDeferred {
				formRemoved = true
				return nil
			}
			return formNotFound(formID)
		}
		entry.detach(compID, host)
		remaining := len(entry.views)
		r.mu.Unlock()

		if remaining > 0 {
			return nil
		}
		formRemoved = true
		return r.destroyUnsafe(formID, entry)
	})
	return
}

// ReleaseComp releases the component of a recycled form. An empty compID
// releases every component. The surface is destroyed once no component is left.
func (r *Record) ReleaseComp(formID interop.FormID, compID string) error {
	return r.do(func() error {
		r.mu.Lock()
		entry, found := r.forms[formID]
		if !found {
			r.mu.Unlock()
			return formNotFound(formID)
		}
		entry.detachComp(compID)
		remaining := len(entry.comps())
		r.mu.Unlock()

		if remaining > 0 {
			log.WithField("formID", formID).WithField("compID", compID).Debug("Form still has components")
			return nil
		}
		return r.destroyUnsafe(formID, entry)
	})
}

// HandleHostDied drops the host from every form and destroys the forms no
// host displays anymore. It returns the removed forms.
func (r *Record) HandleHostDied(host interop.HostToken) ([]interop.FormID, error) {
	var removed []interop.FormID
	err := r.do(func() error {
		var orphans []interop.FormID
		r.mu.Lock()
		for formID, entry := range r.forms {
			if held := entry.detachHost(host); held && len(entry.views) == 0 {
				orphans = append(orphans, formID)
			}
		}
		for formID, pending := range r.deferred {
			if pending.host == host {
				delete(r.deferred, formID)
			}
		}
		r.mu.Unlock()

		var errs error
		for _, formID := range orphans {
			entry, found := r.lookup(formID)
			if !found {
				continue
			}
			errs = multierr.Append(errs, r.destroyUnsafe(formID, entry))
			removed = append(removed, formID)
		}
		return errs
	})
	return removed, err
}

// Recycle serializes the form's visual state. The surface stays alive until
// ReleaseComp.
func (r *Record) Recycle(formID interop.FormID) ([]byte, error) {
	var data []byte
	err := r.do(func() error {
		entry, found := r.lookup(formID)
		if !found {
			return formNotFound(formID)
		}
		blob, err := r.engine.Serialize(entry.surface)
		if err != nil {
			return engineError("serialize", formID, err)
		}
		data = blob
		return nil
	})
	return data, err
}

// Recover rebuilds the form's surface from recycled data. An empty blob
// creates a fresh surface; restored is false in that case.
func (r *Record) Recover(info interop.FormInfo, host interop.HostToken, data []byte, clickOnly bool) (restored bool, err error) {
	err = r.do(func() error {
		var views []formView
		if existing, found := r.lookup(info.FormID); found {
			if len(data) == 0 {
				return r.upsertUnsafe(info, host)
			}
			r.mu.RLock()
			for v := range existing.views {
				views = append(views, v)
			}
			r.mu.RUnlock()
			if err := r.destroyUnsafe(info.FormID, existing); err != nil {
				log.WithError(err).WithField("formID", info.FormID).Warn("Failed to destroy surface before recovery")
			}
		}

		ctx := r.surfaceContext(info, clickOnly)
		var handle interop.SurfaceHandle
		if len(data) == 0 {
			log.WithField("formID", info.FormID).Warn("Recovering form without status data")
			h, err := r.engine.CreateSurface(info, ctx)
			if err != nil {
				return engineError("create", info.FormID, err)
			}
			handle = h
		} else {
			h, err := r.engine.Deserialize(info, ctx, data)
			if err != nil {
				return engineError("deserialize", info.FormID, err)
			}
			handle = h
			restored = true
		}

		entry := newFormEntry(info, handle, ctx.IsDynamic)
		entry.visible = info.Visible && !clickOnly
		entry.addView(host, info.CompID)
		for _, v := range views {
			entry.views[v] = struct{}{}
		}

		r.mu.Lock()
		r.forms[info.FormID] = entry
		r.mu.Unlock()
		return nil
	})
	return
}

// Reload refreshes every form of the batch. A failing form does not stop the
// others; the errors are combined.
func (r *Record) Reload(infos []interop.FormInfo) error {
	return r.do(func() error {
		var errs error
		for _, info := range infos {
			entry, found := r.lookup(info.FormID)
			if !found {
				errs = multierr.Append(errs, formNotFound(info.FormID))
				continue
			}
			if err := r.engine.Update(entry.surface, info); err != nil {
				errs = multierr.Append(errs, engineError("reload", info.FormID, err))
				continue
			}
			r.mu.Lock()
			entry.info = info
			r.mu.Unlock()
		}
		return errs
	})
}

// UpdateSize resizes the form's surface.
func (r *Record) UpdateSize(formID interop.FormID, width, height, borderWidth float64) error {
	return r.do(func() error {
		entry, found := r.lookup(formID)
		if !found {
			return formNotFound(formID)
		}
		if err := r.engine.Resize(entry.surface, width, height, borderWidth); err != nil {
			return engineError("resize", formID, err)
		}
		r.mu.Lock()
		entry.info.Width = width
		entry.info.Height = height
		entry.info.BorderWidth = borderWidth
		r.mu.Unlock()
		return nil
	})
}

// SetVisible flips the form's visibility.
func (r *Record) SetVisible(formID interop.FormID, visible bool) error {
	return r.do(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		entry, found := r.forms[formID]
		if !found {
			return formNotFound(formID)
		}
		entry.visible = visible
		entry.info.Visible = visible
		return nil
	})
}

// AllFormsInvisible reports whether no form of the record is visible.
func (r *Record) AllFormsInvisible() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.forms {
		if entry.visible {
			return false
		}
	}
	return true
}

// ApplyConfiguration stores config and pushes it to every surface. Dynamic
// surfaces take the configuration directly; static forms are re-rendered from
// their last request.
func (r *Record) ApplyConfiguration(config *interop.Configuration) error {
	return r.do(func() error {
		r.mu.Lock()
		r.config = config
		entries := make(map[interop.FormID]*formEntry, len(r.forms))
		for formID, entry := range r.forms {
			entries[formID] = entry
		}
		r.mu.Unlock()

		var errs error
		for formID, entry := range entries {
			if entry.dynamic {
				errs = multierr.Append(errs, engineError("configure", formID, r.engine.UpdateConfiguration(entry.surface, config)))
				continue
			}
			r.mu.RLock()
			info := entry.info
			r.mu.RUnlock()
			errs = multierr.Append(errs, engineError("replay", formID, r.engine.Update(entry.surface, info)))
		}
		return errs
	})
}

// FlushDeferred marks the device unlocked and renders every deferred form.
// It returns the forms rendered.
func (r *Record) FlushDeferred() ([]interop.FormID, error) {
	var flushed []interop.FormID
	err := r.do(func() error {
		r.mu.Lock()
		r.locked = false
		pending := make([]deferredRender, 0, len(r.deferred))
		for _, d := range r.deferred {
			pending = append(pending, d)
		}
		r.deferred = make(map[interop.FormID]deferredRender)
		r.mu.Unlock()

		sort.Slice(pending, func(i, j int) bool { return pending[i].info.FormID < pending[j].info.FormID })

		var errs error
		for _, d := range pending {
			if err := r.upsertUnsafe(d.info, d.host); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			flushed = append(flushed, d.info.FormID)
		}
		return errs
	})
	return flushed, err
}

// HasForm reports whether the form is rendered or deferred.
func (r *Record) HasForm(formID interop.FormID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, live := r.forms[formID]
	_, deferred := r.deferred[formID]
	return live || deferred
}

// IsEmpty reports whether the record holds no form, rendered or deferred.
func (r *Record) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms) == 0 && len(r.deferred) == 0
}

// HasPendingWork reports whether any operation is queued or running.
func (r *Record) HasPendingWork() bool {
	r.mu.RLock()
	inflight := r.inflight
	r.mu.RUnlock()
	return inflight > 0 || r.exec.Pending() > 0
}

// Count returns the number of rendered forms.
func (r *Record) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms)
}

// TryRetire marks an empty and idle record as released. Once retired every
// operation fails with ErrRecordReleased. The caller must hold the lock of the
// map the record is stored in.
func (r *Record) TryRetire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released || r.inflight > 0 || len(r.forms) > 0 || len(r.deferred) > 0 {
		return false
	}
	r.released = true
	return true
}

// Release destroys every surface of the record and stops its executor.
func (r *Record) Release() error {
	r.releaseOnce.Do(func() {
		r.mu.Lock()
		r.released = true
		r.mu.Unlock()

		r.releaseErr = r.exec.Do(func() error {
			r.mu.Lock()
			forms := r.forms
			r.forms = make(map[interop.FormID]*formEntry)
			r.deferred = make(map[interop.FormID]deferredRender)
			r.mu.Unlock()

			var errs error
			for formID, entry := range forms {
				errs = multierr.Append(errs, engineError("destroy", formID, r.engine.Destroy(entry.surface)))
			}
			return errs
		})
		r.exec.Stop()

		if r.releaseErr != nil {
			r.releaseErr = fmt.Errorf("release client %s: %w", r.clientID, r.releaseErr)
		}
	})
	return r.releaseErr
}

// Describe returns the record description for debugging purposes.
func (r *Record) Describe() statejson.RecordDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc := statejson.RecordDescription{
		ClientID:        r.clientID,
		BundleName:      r.bundleName,
		SupportsDynamic: r.supportsDynamic,
		Forms:           make([]statejson.SurfaceDescription, 0, len(r.forms)),
		DeferredForms:   make([]int64, 0, len(r.deferred)),
		PendingTasks:    r.exec.Pending(),
	}
	for formID, entry := range r.forms {
		desc.Forms = append(desc.Forms, statejson.SurfaceDescription{
			FormID:     int64(formID),
			Components: entry.comps(),
			Hosts:      entry.hostCount(),
			Visible:    entry.visible,
		})
	}
	for formID := range r.deferred {
		desc.DeferredForms = append(desc.DeferredForms, int64(formID))
	}
	sort.Slice(desc.Forms, func(i, j int) bool { return desc.Forms[i].FormID < desc.Forms[j].FormID })
	sort.Slice(desc.DeferredForms, func(i, j int) bool { return desc.DeferredForms[i] < desc.DeferredForms[j] })
	return desc
}
