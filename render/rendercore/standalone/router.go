// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"
	"golang.org/x/sync/semaphore"

	"go.formrender.dev/render/core/statejson"
	"go.formrender.dev/render/interop"
)

// RenderServer is the part of the render manager served over HTTP.
type RenderServer interface {
	Dispatch(req *interop.Request) *interop.Response
	InternalState() statejson.InternalStateDescription
	Shutdown() error
}

// operationRoutes are served under /v1/<operation name>.
var operationRoutes = []interop.Operation{
	interop.OpRenderForm,
	interop.OpStopRenderingForm,
	interop.OpReleaseRenderer,
	interop.OpCleanFormHost,
	interop.OpReloadForm,
	interop.OpOnUnlock,
	interop.OpRecycleForm,
	interop.OpRecoverForm,
	interop.OpSetVisibleChange,
	interop.OpUpdateFormSize,
	interop.OpConfigurationUpdated,
	interop.OpSetScreenOn,
}

// NewHTTPRouter serves the lifecycle operations of s. At most maxInflight
// operations run at once; metricsHandler may be nil.
func NewHTTPRouter(s RenderServer, eventLog *EventLog, metricsHandler http.Handler, maxInflight int64, shutdownFunc context.CancelFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(standaloneAccessLogDecorator)

	r.Group(func(r chi.Router) {
		r.Use(inflightLimiter(semaphore.NewWeighted(maxInflight)))
		for _, op := range operationRoutes {
			op := op
			r.Post("/v1/"+op.String(), func(w http.ResponseWriter, r *http.Request) { OperationHandler(w, r, s, eventLog, op) })
		}
	})

	r.Get("/test/ping", func(w http.ResponseWriter, r *http.Request) { PingHandler(w, r) })
	r.Get("/test/internalState", func(w http.ResponseWriter, r *http.Request) { InternalStateHandler(w, r, s) })
	r.Get("/test/eventLog", func(w http.ResponseWriter, r *http.Request) { EventLogHandler(w, r, eventLog) })
	r.Post("/test/shutdown", func(w http.ResponseWriter, r *http.Request) { ShutdownHandler(w, r, s, shutdownFunc) })
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	return r
}
