// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package interop

import (
	"errors"
	"fmt"
)

// Operation names one lifecycle call accepted by the render service.
type Operation int

const (
	OpUnknown Operation = iota
	OpRenderForm
	OpStopRenderingForm
	OpReleaseRenderer
	OpCleanFormHost
	OpReloadForm
	OpOnUnlock
	OpRecycleForm
	OpRecoverForm
	OpSetVisibleChange
	OpUpdateFormSize
	OpConfigurationUpdated
	OpSetScreenOn
)

var operationNames = map[Operation]string{
	OpRenderForm:           "RenderForm",
	OpStopRenderingForm:    "StopRenderingForm",
	OpReleaseRenderer:      "ReleaseRenderer",
	OpCleanFormHost:        "CleanFormHost",
	OpReloadForm:           "ReloadForm",
	OpOnUnlock:             "OnUnlock",
	OpRecycleForm:          "RecycleForm",
	OpRecoverForm:          "RecoverForm",
	OpSetVisibleChange:     "SetVisibleChange",
	OpUpdateFormSize:       "UpdateFormSize",
	OpConfigurationUpdated: "OnConfigurationUpdated",
	OpSetScreenOn:          "SetScreenOn",
}

// ErrUnknownOperation is returned when an operation name cannot be parsed.
var ErrUnknownOperation = errors.New("ErrUnknownOperation")

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Cannot stringify interop.Operation.%d", int(op))
}

// ParseOperation resolves an operation by name.
func ParseOperation(name string) (Operation, error) {
	for op, n := range operationNames {
		if n == name {
			return op, nil
		}
	}
	return OpUnknown, ErrUnknownOperation
}

// MarshalText encodes the operation by name.
func (op Operation) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// UnmarshalText decodes an operation name.
func (op *Operation) UnmarshalText(text []byte) error {
	parsed, err := ParseOperation(string(text))
	if err != nil {
		return fmt.Errorf("%w: %q", err, string(text))
	}
	*op = parsed
	return nil
}

// Request is the flat parameter bag of every operation. Each operation reads
// only the fields it needs.
type Request struct {
	Op            Operation         `json:"op"`
	FormInfo      FormInfo          `json:"formInfo"`
	FormInfos     []FormInfo        `json:"formInfos,omitempty"`
	Params        RequestParams     `json:"params"`
	FormID        FormID            `json:"formId,omitempty"`
	CompID        string            `json:"compId,omitempty"`
	HostToken     HostToken         `json:"hostToken,omitempty"`
	Visible       bool              `json:"visible,omitempty"`
	Width         float64           `json:"width,omitempty"`
	Height        float64           `json:"height,omitempty"`
	BorderWidth   float64           `json:"borderWidth,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty"`
	ScreenOn      bool              `json:"screenOn,omitempty"`

	// Supply receives asynchronous replies for RenderForm and StopRenderingForm.
	Supply FormSupply `json:"-"`
}

// Response is the synchronous outcome of a dispatched request.
type Response struct {
	Op      Operation  `json:"op"`
	Code    ResultCode `json:"code"`
	Message string     `json:"message,omitempty"`

	// HostToken echoes the host a form was rendered or recovered for.
	HostToken HostToken `json:"hostToken,omitempty"`
}
