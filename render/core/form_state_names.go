// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

// String values of possible form states
const (
	FormIdleStateName      = "Idle"
	FormRenderingStateName = "Rendering"
	FormRenderedStateName  = "Rendered"
	// FormRenderedState -> FormRecyclingState
	FormRecyclingStateName = "Recycling"
	// FormRecyclingState -> FormRecycledState, on RECYCLE_FORM_DONE
	FormRecycledStateName = "Recycled"
	// FormRecyclingState -> FormRecycleFailedState, on timeout or RECYCLE_FORM_FAIL
	FormRecycleFailedStateName = "RecycleFailed"
	FormRecoveringStateName    = "Recovering"
	FormDeletingStateName      = "Deleting"
)
