// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package rendercore

import (
	"errors"

	"go.formrender.dev/render/interop"
)

var ErrBindProviderFailed = errors.New("BindProviderFailed")
var ErrInvalidFormID = errors.New("InvalidFormID")
var ErrInvalidParam = errors.New("InvalidParam")

var ErrNotFound = errors.New("NotFound")
var ErrInvalidState = errors.New("InvalidState")

var ErrBackendFailure = errors.New("BackendFailure")
var ErrRecycleTimeout = errors.New("RecycleTimeout")

var ErrManagerShutdown = errors.New("ManagerShutdown") // every operation after Shutdown

var resultCodes = []struct {
	err  error
	code interop.ResultCode
}{
	{ErrBindProviderFailed, interop.ResultBindProviderFailed},
	{ErrInvalidFormID, interop.ResultInvalidFormID},
	{ErrInvalidParam, interop.ResultInvalidParam},
	{ErrNotFound, interop.ResultNotFound},
	{ErrInvalidState, interop.ResultInvalidState},
	{ErrBackendFailure, interop.ResultBackendFailure},
	{ErrRecycleTimeout, interop.ResultRecycleTimeout},
	{ErrManagerShutdown, interop.ResultShutdown},
}

// ResultCodeOf converts an operation error into the code reported to callers.
func ResultCodeOf(err error) interop.ResultCode {
	if err == nil {
		return interop.ResultOK
	}
	for _, rc := range resultCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return interop.ResultInternalError
}
