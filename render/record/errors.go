// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"errors"
	"fmt"

	"go.formrender.dev/render/interop"
)

// ErrFormNotFound returned when an operation names a form the record does not hold
var ErrFormNotFound = errors.New("ErrFormNotFound")

// ErrRecordReleased returned when an operation reaches a record that was
// retired from the client map. Callers look the record up again.
var ErrRecordReleased = errors.New("ErrRecordReleased")

// ErrNothingToDetach returned when a stop names neither a component nor a host
var ErrNothingToDetach = errors.New("ErrNothingToDetach")

// EngineError wraps a failure of the render engine on one form.
type EngineError struct {
	Op     string
	FormID interop.FormID
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s form %d: %s", e.Op, e.FormID, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func engineError(op string, formID interop.FormID, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, FormID: formID, Err: err}
}

func formNotFound(formID interop.FormID) error {
	return fmt.Errorf("form %d: %w", formID, ErrFormNotFound)
}
