// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package interop

import (
	"fmt"
)

// FormID identifies one widget instance. Valid ids are strictly positive.
type FormID int64

// Valid reports whether the id can address a form.
func (id FormID) Valid() bool {
	return id > 0
}

// HostToken is an opaque identity of the UI host displaying a form. It is only
// compared, never dereferenced.
type HostToken string

// SurfaceHandle is an opaque reference to a render surface owned by the
// RenderEngine.
type SurfaceHandle string

// FormInfo describes a form to render. It is sent by the form supply with every
// lifecycle request.
type FormInfo struct {
	FormID         FormID  `json:"formId"`
	CompID         string  `json:"compId,omitempty"`
	BundleName     string  `json:"bundleName,omitempty"`
	ModuleName     string  `json:"moduleName,omitempty"`
	AbilityName    string  `json:"abilityName,omitempty"`
	FormName       string  `json:"formName,omitempty"`
	Dimension      int32   `json:"dimension,omitempty"`
	CodePath       string  `json:"codePath,omitempty"`
	FormData       string  `json:"formData,omitempty"`
	Width          float64 `json:"width,omitempty"`
	Height         float64 `json:"height,omitempty"`
	BorderWidth    float64 `json:"borderWidth,omitempty"`
	IsDynamic      bool    `json:"isDynamic,omitempty"`
	Visible        bool    `json:"visible,omitempty"`
	RequiresUnlock bool    `json:"requiresUnlock,omitempty"`
}

// RequestParams is the parameter bag carried by every lifecycle request.
type RequestParams struct {
	ClientID   string    `json:"clientId"`
	EventID    string    `json:"eventId"`
	HostToken  HostToken `json:"hostToken,omitempty"`
	StatusData []byte    `json:"statusData,omitempty"`
	// IsRecoverFormToHandleClickEvent marks a recovery whose only purpose is to
	// replay a pending click on the form.
	IsRecoverFormToHandleClickEvent bool `json:"isRecoverFormToHandleClickEvent,omitempty"`
}

// SurfaceContext is passed to the RenderEngine when a surface is materialized.
type SurfaceContext struct {
	ClientID         string
	BundleName       string
	Configuration    *Configuration
	IsDynamic        bool
	HandleClickEvent bool
}

// BundleInfo is the read-only metadata returned by BundleLookup.
type BundleInfo struct {
	BundleName      string
	SupportsDynamic bool
}

// FormFsmEvent is an event driving the per-form status machine.
type FormFsmEvent int

const (
	FsmEventNone FormFsmEvent = iota
	RenderForm
	RenderFormDone
	RenderFormFail
	RecycleForm
	RecycleDataDone
	RecycleFormDone
	RecycleFormFail
	RecoverForm
	RecoverFormDone
	RecoverFormFail
	DeleteForm
	DeleteFormDone
	DeleteFormFinish
)

func (e FormFsmEvent) String() string {
	switch e {
	case FsmEventNone:
		return "NONE"
	case RenderForm:
		return "RENDER_FORM"
	case RenderFormDone:
		return "RENDER_FORM_DONE"
	case RenderFormFail:
		return "RENDER_FORM_FAIL"
	case RecycleForm:
		return "RECYCLE_FORM"
	case RecycleDataDone:
		return "RECYCLE_DATA_DONE"
	case RecycleFormDone:
		return "RECYCLE_FORM_DONE"
	case RecycleFormFail:
		return "RECYCLE_FORM_FAIL"
	case RecoverForm:
		return "RECOVER_FORM"
	case RecoverFormDone:
		return "RECOVER_FORM_DONE"
	case RecoverFormFail:
		return "RECOVER_FORM_FAIL"
	case DeleteForm:
		return "DELETE_FORM"
	case DeleteFormDone:
		return "DELETE_FORM_DONE"
	case DeleteFormFinish:
		return "DELETE_FORM_FINISH"
	}
	return fmt.Sprintf("Cannot stringify interop.FormFsmEvent.%d", int(e))
}

// MarshalText encodes the event by name.
func (e FormFsmEvent) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// ResultCode is the outcome reported for a lifecycle request.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultEmptyStatusData
	ResultInvalidFormID
	ResultInvalidParam
	ResultBindProviderFailed
	ResultNotFound
	ResultInvalidState
	ResultBackendFailure
	ResultRecycleTimeout
	ResultShutdown
	ResultInternalError
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "OK"
	case ResultEmptyStatusData:
		return "Warning.EmptyStatusData"
	case ResultInvalidFormID:
		return "Client.InvalidFormID"
	case ResultInvalidParam:
		return "Client.InvalidParam"
	case ResultBindProviderFailed:
		return "Client.BindProviderFailed"
	case ResultNotFound:
		return "Client.NotFound"
	case ResultInvalidState:
		return "Client.InvalidState"
	case ResultBackendFailure:
		return "Render.BackendFailure"
	case ResultRecycleTimeout:
		return "Render.RecycleTimeout"
	case ResultShutdown:
		return "Service.Shutdown"
	case ResultInternalError:
		return "Service.InternalError"
	}
	return fmt.Sprintf("Cannot stringify interop.ResultCode.%d", int(c))
}

// Failed reports whether the code is a failure. Warnings are not failures.
func (c ResultCode) Failed() bool {
	return c != ResultOK && c != ResultEmptyStatusData
}

// MarshalText encodes the code by name.
func (c ResultCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Reply is delivered to the form supply exactly once per originating request.
type Reply struct {
	Params RequestParams `json:"params"`
	Event  FormFsmEvent  `json:"event,omitempty"`
	Code   ResultCode    `json:"code"`
}
