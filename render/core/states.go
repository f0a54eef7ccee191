// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"errors"
	"time"

	"go.formrender.dev/render/core/statejson"
	"go.formrender.dev/render/interop"
)

// ErrNotAllowed returned on illegal state transition
var ErrNotAllowed = errors.New("State transition is not allowed")

// FormState is form status machine interface.
type FormState interface {
	RenderForm() error
	RenderFormDone() error
	RenderFormFail() error
	RecycleForm() error
	RecycleDataDone() error
	RecycleFormDone() error
	RecycleFormFail() error
	RecoverForm() error
	RecoverFormDone() error
	RecoverFormFail() error
	DeleteForm() error
	DeleteFormDone() error
	DeleteFormFinish() error
	Name() string
}

type disallowEveryTransitionByDefault struct{}

func (s *disallowEveryTransitionByDefault) RenderForm() error       { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) RenderFormDone() error   { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) RenderFormFail() error   { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) RecycleForm() error      { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) RecycleDataDone() error  { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) RecycleFormDone() error  { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) RecycleFormFail() error  { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) RecoverForm() error      { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) RecoverFormDone() error  { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) RecoverFormFail() error  { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) DeleteForm() error       { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) DeleteFormDone() error   { return ErrNotAllowed }
func (s *disallowEveryTransitionByDefault) DeleteFormFinish() error { return ErrNotAllowed }

// FormStatus is the status machine of one form. It is not safe for concurrent
// use; StatusCoordinator guards every FormStatus with its own lock.
type FormStatus struct {
	FormID interop.FormID

	currentState      FormState
	stateLastModified time.Time
	params            interop.RequestParams
	recycleDataDone   bool

	FormIdleState          FormState
	FormRenderingState     FormState
	FormRenderedState      FormState
	FormRecyclingState     FormState
	FormRecycledState      FormState
	FormRecycleFailedState FormState
	FormRecoveringState    FormState
	FormDeletingState      FormState
}

// NewFormStatus returns a FormStatus in the Idle state.
func NewFormStatus(formID interop.FormID) *FormStatus {
	form := &FormStatus{FormID: formID}

	form.FormIdleState = &FormIdleState{form: form}
	form.FormRenderingState = &FormRenderingState{form: form}
	form.FormRenderedState = &FormRenderedState{form: form}
	form.FormRecyclingState = &FormRecyclingState{form: form}
	form.FormRecycledState = &FormRecycledState{form: form}
	form.FormRecycleFailedState = &FormRecycleFailedState{form: form}
	form.FormRecoveringState = &FormRecoveringState{form: form}
	form.FormDeletingState = &FormDeletingState{form: form}

	form.SetState(form.FormIdleState)
	return form
}

// SetState forces the current state.
func (s *FormStatus) SetState(state FormState) {
	s.currentState = state
	s.stateLastModified = time.Now()
}

// GetState returns the current state.
func (s *FormStatus) GetState() FormState {
	return s.currentState
}

// Params returns the correlation parameters of the latest accepted request.
func (s *FormStatus) Params() interop.RequestParams {
	return s.params
}

// RecycleDataCaptured reports whether the current recycle has serialized its data.
func (s *FormStatus) RecycleDataCaptured() bool {
	return s.recycleDataDone
}

// Apply delegates event to the current state implementation.
func (s *FormStatus) Apply(event interop.FormFsmEvent) error {
	state := s.currentState
	switch event {
	case interop.RenderForm:
		return state.RenderForm()
	case interop.RenderFormDone:
		return state.RenderFormDone()
	case interop.RenderFormFail:
		return state.RenderFormFail()
	case interop.RecycleForm:
		return state.RecycleForm()
	case interop.RecycleDataDone:
		return state.RecycleDataDone()
	case interop.RecycleFormDone:
		return state.RecycleFormDone()
	case interop.RecycleFormFail:
		return state.RecycleFormFail()
	case interop.RecoverForm:
		return state.RecoverForm()
	case interop.RecoverFormDone:
		return state.RecoverFormDone()
	case interop.RecoverFormFail:
		return state.RecoverFormFail()
	case interop.DeleteForm:
		return state.DeleteForm()
	case interop.DeleteFormDone:
		return state.DeleteFormDone()
	case interop.DeleteFormFinish:
		return state.DeleteFormFinish()
	}
	return ErrNotAllowed
}

// GetFormDescription returns form description object for debugging purposes
func (s *FormStatus) GetFormDescription() statejson.FormDescription {
	return statejson.FormDescription{
		FormID:  int64(s.FormID),
		EventID: s.params.EventID,
		State: statejson.StateDescription{
			Name:         s.currentState.Name(),
			LastModified: s.stateLastModified.UnixNano() / int64(time.Millisecond),
		},
	}
}

// FormIdleState form has no live status. Idle forms are not kept by the
// coordinator.
type FormIdleState struct {
	disallowEveryTransitionByDefault
	form *FormStatus
}

func (s *FormIdleState) RenderForm() error {
	s.form.SetState(s.form.FormRenderingState)
	return nil
}

func (s *FormIdleState) RecycleForm() error {
	s.form.recycleDataDone = false
	s.form.SetState(s.form.FormRecyclingState)
	return nil
}

// RecoverForm from Idle happens when the host restarted and lost the status of
// a form the supply still holds recycled data for.
func (s *FormIdleState) RecoverForm() error {
	s.form.SetState(s.form.FormRecoveringState)
	return nil
}

func (s *FormIdleState) DeleteForm() error {
	s.form.SetState(s.form.FormDeletingState)
	return nil
}

func (s *FormIdleState) Name() string {
	return FormIdleStateName
}

// FormRenderingState render requested, surface not yet confirmed.
type FormRenderingState struct {
	disallowEveryTransitionByDefault
	form *FormStatus
}

// RenderForm is re-entrant while rendering.
func (s *FormRenderingState) RenderForm() error {
	return nil
}

func (s *FormRenderingState) RenderFormDone() error {
	s.form.SetState(s.form.FormRenderedState)
	return nil
}

func (s *FormRenderingState) RenderFormFail() error {
	s.form.SetState(s.form.FormIdleState)
	return nil
}

func (s *FormRenderingState) DeleteForm() error {
	s.form.SetState(s.form.FormDeletingState)
	return nil
}

func (s *FormRenderingState) Name() string {
	return FormRenderingStateName
}

// FormRenderedState form has a live surface.
type FormRenderedState struct {
	disallowEveryTransitionByDefault
	form *FormStatus
}

func (s *FormRenderedState) RenderForm() error {
	s.form.SetState(s.form.FormRenderingState)
	return nil
}

func (s *FormRenderedState) RecycleForm() error {
	s.form.recycleDataDone = false
	s.form.SetState(s.form.FormRecyclingState)
	return nil
}

func (s *FormRenderedState) DeleteForm() error {
	s.form.SetState(s.form.FormDeletingState)
	return nil
}

func (s *FormRenderedState) Name() string {
	return FormRenderedStateName
}

// FormRecyclingState form status is being serialized and its surface released.
type FormRecyclingState struct {
	disallowEveryTransitionByDefault
	form *FormStatus
}

func (s *FormRecyclingState) RecycleDataDone() error {
	if s.form.recycleDataDone {
		return ErrNotAllowed
	}
	s.form.recycleDataDone = true
	return nil
}

func (s *FormRecyclingState) RecycleFormDone() error {
	s.form.SetState(s.form.FormRecycledState)
	return nil
}

func (s *FormRecyclingState) RecycleFormFail() error {
	s.form.SetState(s.form.FormRecycleFailedState)
	return nil
}

func (s *FormRecyclingState) RecoverForm() error {
	s.form.SetState(s.form.FormRecoveringState)
	return nil
}

func (s *FormRecyclingState) DeleteForm() error {
	s.form.SetState(s.form.FormDeletingState)
	return nil
}

func (s *FormRecyclingState) Name() string {
	return FormRecyclingStateName
}

// FormRecycledState form surface released, status held by the supply.
type FormRecycledState struct {
	disallowEveryTransitionByDefault
	form *FormStatus
}

func (s *FormRecycledState) RenderForm() error {
	s.form.SetState(s.form.FormRenderingState)
	return nil
}

func (s *FormRecycledState) RecoverForm() error {
	s.form.SetState(s.form.FormRecoveringState)
	return nil
}

func (s *FormRecycledState) DeleteForm() error {
	s.form.SetState(s.form.FormDeletingState)
	return nil
}

func (s *FormRecycledState) Name() string {
	return FormRecycledStateName
}

// FormRecycleFailedState recycle did not complete. A late RECYCLE_FORM_DONE is
// rejected here.
type FormRecycleFailedState struct {
	disallowEveryTransitionByDefault
	form *FormStatus
}

func (s *FormRecycleFailedState) RenderForm() error {
	s.form.SetState(s.form.FormRenderingState)
	return nil
}

func (s *FormRecycleFailedState) RecycleForm() error {
	s.form.recycleDataDone = false
	s.form.SetState(s.form.FormRecyclingState)
	return nil
}

func (s *FormRecycleFailedState) RecoverForm() error {
	s.form.SetState(s.form.FormRecoveringState)
	return nil
}

func (s *FormRecycleFailedState) DeleteForm() error {
	s.form.SetState(s.form.FormDeletingState)
	return nil
}

func (s *FormRecycleFailedState) Name() string {
	return FormRecycleFailedStateName
}

// FormRecoveringState surface is being rebuilt from recycled status.
type FormRecoveringState struct {
	disallowEveryTransitionByDefault
	form *FormStatus
}

func (s *FormRecoveringState) RecoverFormDone() error {
	s.form.SetState(s.form.FormRenderedState)
	return nil
}

func (s *FormRecoveringState) RecoverFormFail() error {
	s.form.SetState(s.form.FormRecycledState)
	return nil
}

func (s *FormRecoveringState) DeleteForm() error {
	s.form.SetState(s.form.FormDeletingState)
	return nil
}

func (s *FormRecoveringState) Name() string {
	return FormRecoveringStateName
}

// FormDeletingState a host stopped rendering the form.
type FormDeletingState struct {
	disallowEveryTransitionByDefault
	form *FormStatus
}

// DeleteForm is re-entrant while deleting.
func (s *FormDeletingState) DeleteForm() error {
	return nil
}

// DeleteFormDone other hosts still display the form.
func (s *FormDeletingState) DeleteFormDone() error {
	s.form.SetState(s.form.FormRenderedState)
	return nil
}

func (s *FormDeletingState) DeleteFormFinish() error {
	s.form.SetState(s.form.FormIdleState)
	return nil
}

func (s *FormDeletingState) Name() string {
	return FormDeletingStateName
}
