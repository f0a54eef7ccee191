// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go.formrender.dev/render/core/statejson"
	"go.formrender.dev/render/interop"
)

// ErrUnknownForm returned when an outcome event names a form with no status
var ErrUnknownForm = errors.New("Unknown form")

// RecycleFailureHandler is told about recycles that timed out.
type RecycleFailureHandler func(formID interop.FormID, reply interop.Reply)

// StatusCoordinator tracks the status machine of every form with an in-flight
// or completed lifecycle operation. Request events (Begin) record the caller's
// correlation parameters so that outcome events (Post), which arrive on other
// call stacks, can be routed back to the originating request.
type StatusCoordinator struct {
	mu              sync.Mutex
	forms           map[interop.FormID]*FormStatus
	watchdog        *recycleWatchdog
	onRecycleFailed RecycleFailureHandler
}

// NewStatusCoordinator returns a coordinator arming recycle timeouts on scheduler.
func NewStatusCoordinator(scheduler Scheduler, recycleTimeout time.Duration, onRecycleFailed RecycleFailureHandler) *StatusCoordinator {
	return &StatusCoordinator{
		forms:           make(map[interop.FormID]*FormStatus),
		watchdog:        newRecycleWatchdog(scheduler, recycleTimeout),
		onRecycleFailed: onRecycleFailed,
	}
}

// Begin applies a request event. On success params become the form's
// correlation parameters.
func (c *StatusCoordinator) Begin(formID interop.FormID, event interop.FormFsmEvent, params interop.RequestParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	form, found := c.forms[formID]
	if !found {
		form = NewFormStatus(formID)
	}

	prev := form.GetState()
	if err := form.Apply(event); err != nil {
		logDiscarded(formID, event, prev, err)
		return err
	}
	form.params = params
	c.settleUnsafe(form, prev)
	return nil
}

// Post applies an outcome event and returns the correlation parameters of the
// request that started the operation.
func (c *StatusCoordinator) Post(formID interop.FormID, event interop.FormFsmEvent) (interop.RequestParams, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	form, found := c.forms[formID]
	if !found {
		log.WithField("formID", formID).WithField("event", event).Warn("Discarding event for form without status")
		return interop.RequestParams{}, ErrUnknownForm
	}

	prev := form.GetState()
	if err := form.Apply(event); err != nil {
		logDiscarded(formID, event, prev, err)
		return form.params, err
	}
	params := form.params
	c.settleUnsafe(form, prev)
	return params, nil
}

// State returns the name of the form's current state. Forms without status
// are Idle.
func (c *StatusCoordinator) State(formID interop.FormID) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if form, found := c.forms[formID]; found {
		return form.GetState().Name()
	}
	return FormIdleStateName
}

// Params returns the stored correlation parameters of the form.
func (c *StatusCoordinator) Params(formID interop.FormID) (interop.RequestParams, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	form, found := c.forms[formID]
	if !found {
		return interop.RequestParams{}, false
	}
	return form.params, true
}

// RecycleTimeoutArmed reports whether a recycle timeout is pending for the form.
func (c *StatusCoordinator) RecycleTimeoutArmed(formID interop.FormID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchdog.armed(formID)
}

// Forget drops the status of a form whose surfaces vanished without a
// lifecycle request, e.g. when its host died.
func (c *StatusCoordinator) Forget(formID interop.FormID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.watchdog.disarm(formID)
	delete(c.forms, formID)
}

// Len returns the number of forms with status.
func (c *StatusCoordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.forms)
}

// Describe returns the status of every form ordered by form id.
func (c *StatusCoordinator) Describe() []statejson.FormDescription {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := make([]statejson.FormDescription, 0, len(c.forms))
	for _, form := range c.forms {
		res = append(res, form.GetFormDescription())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].FormID < res[j].FormID })
	return res
}

// settleUnsafe arms or disarms the recycle timeout on entering or leaving the
// Recycling state, and drops forms that went back to Idle.
func (c *StatusCoordinator) settleUnsafe(form *FormStatus, prev FormState) {
	cur := form.GetState()

	if prev == form.FormRecyclingState && cur != form.FormRecyclingState {
		c.watchdog.disarm(form.FormID)
	}
	if prev != form.FormRecyclingState && cur == form.FormRecyclingState {
		c.watchdog.arm(form.FormID, c.onRecycleTimeout)
	}

	if cur == form.FormIdleState {
		delete(c.forms, form.FormID)
		return
	}
	c.forms[form.FormID] = form
}

func (c *StatusCoordinator) onRecycleTimeout(formID interop.FormID, token uuid.UUID) {
	c.mu.Lock()
	form, found := c.forms[formID]
	if !found || !c.watchdog.claim(formID, token) || form.GetState() != form.FormRecyclingState {
		c.mu.Unlock()
		log.WithField("formID", formID).Debug("Ignoring stale recycle timeout")
		return
	}

	if err := form.Apply(interop.RecycleFormFail); err != nil {
		c.mu.Unlock()
		log.WithError(err).WithField("formID", formID).Error("Failed to fail timed out recycle")
		return
	}
	params := form.params
	c.mu.Unlock()

	log.WithField("formID", formID).WithField("eventID", params.EventID).Warn("Recycle timed out")
	if c.onRecycleFailed != nil {
		c.onRecycleFailed(formID, interop.Reply{
			Params: params,
			Event:  interop.RecycleFormFail,
			Code:   interop.ResultRecycleTimeout,
		})
	}
}

func logDiscarded(formID interop.FormID, event interop.FormFsmEvent, state FormState, err error) {
	log.WithError(err).
		WithField("formID", formID).
		WithField("event", event).
		WithField("state", state.Name()).
		Warn("Discarding event")
}
