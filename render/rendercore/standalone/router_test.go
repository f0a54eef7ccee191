// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"go.formrender.dev/render/engine"
	"go.formrender.dev/render/metrics"
	"go.formrender.dev/render/rendercore"
)

type testServer struct {
	router   http.Handler
	manager  *rendercore.Manager
	engine   *engine.Memory
	eventLog *EventLog
	shutdown bool
}

func newTestServer(t *testing.T) *testServer {
	collector := metrics.NewCollector("")
	ts := &testServer{engine: engine.NewMemory(), eventLog: NewEventLog()}
	ts.manager = rendercore.NewManagerBuilder().SetEngine(ts.engine).SetMetrics(collector).Create()
	t.Cleanup(func() { _ = ts.manager.Shutdown() })
	ts.router = NewHTTPRouter(ts.manager, ts.eventLog, collector.Handler(), 4, func() { ts.shutdown = true })
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

const renderBody = `{
	"formInfo": {"formId": 5, "compId": "c", "bundleName": "com.example", "isDynamic": true, "visible": true},
	"params": {"clientId": "U1", "eventId": "E1"}
}`

type loggedEvent struct {
	Type       string `json:"type"`
	FormID     int64  `json:"formId"`
	StatusData []byte `json:"statusData"`
	Reply      struct {
		Params struct {
			EventID   string `json:"eventId"`
			HostToken string `json:"hostToken"`
		} `json:"params"`
		Event string `json:"event"`
		Code  string `json:"code"`
	} `json:"reply"`
}

type loggedResponse struct {
	Op        string `json:"op"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	HostToken string `json:"hostToken"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) loggedResponse {
	var resp loggedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (ts *testServer) events(t *testing.T) []loggedEvent {
	rec := ts.do(http.MethodGet, "/test/eventLog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []loggedEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	return events
}

func TestRenderForm(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/RenderForm", renderBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "RenderForm", resp.Op)
	assert.Equal(t, "OK", resp.Code)

	events := ts.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, RenderTaskDone, events[0].Type)
	assert.Equal(t, int64(5), events[0].FormID)
	assert.Equal(t, "RENDER_FORM_DONE", events[0].Reply.Event)
	assert.Equal(t, "E1", events[0].Reply.Params.EventID)
	assert.NotEmpty(t, events[0].Reply.Params.HostToken, "a host token is minted when the request has none")
	assert.Equal(t, events[0].Reply.Params.HostToken, resp.HostToken)
	assert.Equal(t, 1, ts.engine.Live())
}

func TestRenderResponseCarriesHostToken(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/v1/RenderForm", renderBody)
	require.Equal(t, http.StatusOK, rec.Code)
	hostToken := decodeResponse(t, rec).HostToken
	require.NotEmpty(t, hostToken)

	rec = ts.do(http.MethodPost, "/v1/StopRenderingForm", `{
		"formInfo": {"formId": 5, "compId": "c"},
		"params": {"clientId": "U1", "eventId": "E2", "hostToken": "`+hostToken+`"}
	}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	events := ts.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, "DELETE_FORM_FINISH", events[1].Reply.Event)
	assert.Equal(t, 0, ts.engine.Live())
}

func TestStopWithoutHostTokenDestroysForm(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/RenderForm", renderBody).Code)

	rec := ts.do(http.MethodPost, "/v1/StopRenderingForm", `{
		"formInfo": {"formId": 5, "compId": "c"},
		"params": {"clientId": "U1", "eventId": "E2"}
	}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	events := ts.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, "DELETE_FORM_FINISH", events[1].Reply.Event)
	assert.Equal(t, 0, ts.engine.Live())
	assert.Equal(t, 0, ts.manager.RecordCount())
}

func TestRenderThenStop(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/RenderForm", renderBody).Code)
	hostToken := ts.events(t)[0].Reply.Params.HostToken

	rec := ts.do(http.MethodPost, "/v1/StopRenderingForm", `{
		"formInfo": {"formId": 5, "compId": "c"},
		"params": {"clientId": "U1", "eventId": "E2", "hostToken": "`+hostToken+`"}
	}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	events := ts.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, StopRenderingTaskDone, events[1].Type)
	assert.Equal(t, "DELETE_FORM_FINISH", events[1].Reply.Event)
	assert.Equal(t, 0, ts.manager.RecordCount())
}

func TestReleaseRendererUnknownClient(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/ReleaseRenderer", `{"formId": 5, "params": {"clientId": "unknown"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	test.AssertJsonsEqual(t,
		[]byte(`{"op":"ReleaseRenderer","code":"Client.NotFound","message":"NotFound: client unknown has no render record"}`),
		rec.Body.Bytes())
}

func TestRecycleAndRecover(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/RenderForm", renderBody).Code)

	rec := ts.do(http.MethodPost, "/v1/RecycleForm", `{"formId": 5, "params": {"clientId": "U1", "eventId": "E2"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := ts.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, RecycleForm, events[1].Type)
	require.NotEmpty(t, events[1].StatusData)

	rec = ts.do(http.MethodPost, "/v1/ReleaseRenderer", `{"formId": 5, "compId": "c", "params": {"clientId": "U1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, ts.engine.Live())

	statusData, err := json.Marshal(events[1].StatusData)
	require.NoError(t, err)
	rec = ts.do(http.MethodPost, "/v1/RecoverForm", `{
		"formInfo": {"formId": 5, "compId": "c", "isDynamic": true, "visible": true},
		"params": {"clientId": "U1", "eventId": "E3", "statusData": `+string(statusData)+`}
	}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "OK", resp.Code)
	assert.NotEmpty(t, resp.HostToken)
	assert.Equal(t, "Rendered", ts.manager.FormState(5))
}

func TestRecoverWithoutStatusDataWarns(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/RecoverForm", `{"formInfo": {"formId": 9}, "params": {"clientId": "U1", "eventId": "E1"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "RecoverForm", resp.Op)
	assert.Equal(t, "Warning.EmptyStatusData", resp.Code)
	assert.Empty(t, resp.Message)
}

func TestInvalidRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/RenderForm", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errorType":"Client.InvalidRequest"`)

	rec = ts.do(http.MethodPost, "/v1/SetVisibleChange", `{"formId": 0, "params": {"clientId": "U1"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"Client.InvalidFormID"`)

	rec = ts.do(http.MethodPost, "/v1/OnConfigurationUpdated", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"Client.InvalidParam"`)

	rec = ts.do(http.MethodPost, "/v1/Explode", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestEndpoints(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/RenderForm", renderBody).Code)

	rec := ts.do(http.MethodGet, "/test/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = ts.do(http.MethodGet, "/test/internalState", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"clientId":"U1"`)

	rec = ts.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `formrender_operations_total{op="RenderForm",result="OK"} 1`)
}

func TestEmptyEventLog(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/test/eventLog", "")
	test.AssertJsonsEqual(t, []byte(`[]`), rec.Body.Bytes())
}

func TestShutdown(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/RenderForm", renderBody).Code)

	rec := ts.do(http.MethodPost, "/test/shutdown", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":[]`)
	assert.True(t, ts.shutdown)
	assert.Equal(t, 0, ts.engine.Live())

	rec = ts.do(http.MethodPost, "/v1/RenderForm", renderBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"Service.Shutdown"`)
}

func TestInflightLimiterGivesUpWithClient(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))

	called := false
	h := inflightLimiter(sem)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/OnUnlock", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errorType":"Service.Unavailable"`)

	sem.Release(1)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/OnUnlock", nil))
	assert.True(t, called)
}
