// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package interop

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperation(t *testing.T) {
	for op, name := range operationNames {
		parsed, err := ParseOperation(name)
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
		assert.Equal(t, name, op.String())
	}

	_, err := ParseOperation("Nope")
	assert.True(t, errors.Is(err, ErrUnknownOperation))
}

func TestRequestJSON(t *testing.T) {
	var req Request
	err := json.Unmarshal([]byte(`{
		"op": "RenderForm",
		"formInfo": {"formId": 5, "compId": "c", "visible": true},
		"params": {"clientId": "U1", "eventId": "E1", "hostToken": "h"}
	}`), &req)
	require.NoError(t, err)
	assert.Equal(t, OpRenderForm, req.Op)
	assert.Equal(t, FormID(5), req.FormInfo.FormID)
	assert.True(t, req.FormInfo.Visible)
	assert.Equal(t, HostToken("h"), req.Params.HostToken)

	err = json.Unmarshal([]byte(`{"op": "Explode"}`), &req)
	assert.True(t, errors.Is(err, ErrUnknownOperation))
}

func TestResponseJSON(t *testing.T) {
	data, err := json.Marshal(Response{Op: OpRecoverForm, Code: ResultEmptyStatusData})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"RecoverForm","code":"Warning.EmptyStatusData"}`, string(data))
}

func TestResultCodeFailed(t *testing.T) {
	assert.False(t, ResultOK.Failed())
	assert.False(t, ResultEmptyStatusData.Failed())
	assert.True(t, ResultNotFound.Failed())
	assert.True(t, ResultRecycleTimeout.Failed())
}

func TestFormIDValid(t *testing.T) {
	assert.True(t, FormID(1).Valid())
	assert.False(t, FormID(0).Valid())
	assert.False(t, FormID(-3).Valid())
}

func TestReplyJSON(t *testing.T) {
	data, err := json.Marshal(Reply{Params: RequestParams{ClientID: "U1", EventID: "E1"}, Event: DeleteFormFinish, Code: ResultOK})
	require.NoError(t, err)
	assert.JSONEq(t, `{"params":{"clientId":"U1","eventId":"E1"},"event":"DELETE_FORM_FINISH","code":"OK"}`, string(data))
}
