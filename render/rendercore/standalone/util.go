// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/render"

	"go.formrender.dev/render/interop"
)

const (
	DoneFailedHTTPCode = 502
)

type ErrorType int

const (
	ClientInvalidRequest ErrorType = iota
	ServiceUnavailable
)

func (t ErrorType) String() string {
	switch t {
	case ClientInvalidRequest:
		return "Client.InvalidRequest"
	case ServiceUnavailable:
		return "Service.Unavailable"
	}
	return fmt.Sprintf("Cannot stringify standalone.ErrorType.%d", int(t))
}

func (t ErrorType) httpStatus() int {
	if t == ServiceUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func readBodyAndUnmarshalJSON(r *http.Request, dst interface{}) *ErrorReply {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return newErrorReply(ClientInvalidRequest, fmt.Sprintf("Failed to read full body: %s", err))
	}
	if len(bodyBytes) == 0 {
		return nil
	}

	if err = json.Unmarshal(bodyBytes, dst); err != nil {
		return newErrorReply(ClientInvalidRequest, fmt.Sprintf("Invalid json %s: %s", string(bodyBytes), err))
	}

	return nil
}

type ErrorReply struct {
	errType      ErrorType
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
}

func newErrorReply(errType ErrorType, errMsg string) *ErrorReply {
	return &ErrorReply{errType: errType, ErrorType: errType.String(), ErrorMessage: errMsg}
}

func (e *ErrorReply) Send(w http.ResponseWriter, r *http.Request) {
	render.Status(r, e.errType.httpStatus())
	render.JSON(w, r, e)
}

// httpStatusOf maps an operation result onto the status code of its response.
func httpStatusOf(code interop.ResultCode) int {
	switch code {
	case interop.ResultOK, interop.ResultEmptyStatusData:
		return http.StatusOK
	case interop.ResultInvalidFormID, interop.ResultInvalidParam, interop.ResultBindProviderFailed:
		return http.StatusBadRequest
	case interop.ResultNotFound:
		return http.StatusNotFound
	case interop.ResultInvalidState:
		return http.StatusConflict
	case interop.ResultBackendFailure, interop.ResultRecycleTimeout:
		return DoneFailedHTTPCode
	case interop.ResultShutdown:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
