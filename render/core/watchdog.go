// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go.formrender.dev/render/interop"
)

// Scheduler runs named, delayed and cancellable tasks.
type Scheduler interface {
	Schedule(name string, delay time.Duration, fn func()) error
	Cancel(name string) bool
}

// recycleWatchdog arms one timeout per recycling form. Every arming gets a
// fresh token so that a timeout belonging to an earlier recycle of the same
// form can never fail a later one.
//
// recycleWatchdog is not safe for concurrent use; the coordinator lock guards it.
type recycleWatchdog struct {
	scheduler Scheduler
	timeout   time.Duration
	tokens    map[interop.FormID]uuid.UUID
}

func newRecycleWatchdog(scheduler Scheduler, timeout time.Duration) *recycleWatchdog {
	return &recycleWatchdog{
		scheduler: scheduler,
		timeout:   timeout,
		tokens:    make(map[interop.FormID]uuid.UUID),
	}
}

func recycleTimeoutTaskName(formID interop.FormID) string {
	return fmt.Sprintf("recycle-timeout-%d", formID)
}

func (w *recycleWatchdog) arm(formID interop.FormID, fire func(interop.FormID, uuid.UUID)) {
	token := uuid.New()
	w.tokens[formID] = token
	err := w.scheduler.Schedule(recycleTimeoutTaskName(formID), w.timeout, func() { fire(formID, token) })
	if err != nil {
		log.WithError(err).WithField("formID", formID).Warn("Failed to arm recycle timeout")
	}
}

// disarm cancels the pending timeout. It returns false when no timeout was
// armed for the form.
func (w *recycleWatchdog) disarm(formID interop.FormID) bool {
	if _, armed := w.tokens[formID]; !armed {
		return false
	}
	delete(w.tokens, formID)
	w.scheduler.Cancel(recycleTimeoutTaskName(formID))
	return true
}

// claim consumes the token of a firing timeout. Only the first claim of the
// current token succeeds.
func (w *recycleWatchdog) claim(formID interop.FormID, token uuid.UUID) bool {
	current, armed := w.tokens[formID]
	if !armed || current != token {
		return false
	}
	delete(w.tokens, formID)
	return true
}

func (w *recycleWatchdog) armed(formID interop.FormID) bool {
	_, armed := w.tokens[formID]
	return armed
}
