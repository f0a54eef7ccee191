// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"net/http"

	"github.com/go-chi/chi/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

func standaloneAccessLogDecorator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("standalone: -> %s %s %v", r.Method, r.URL, r.Header)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := 200
		if ww.Status() != 0 {
			status = ww.Status()
		}

		if status/100 != 2 {
			log.Warnf("standalone: <- %s %d %v", r.URL, status, w.Header())
		} else {
			log.Debugf("standalone: <- %s %d %v", r.URL, status, w.Header())
		}
	})
}

// inflightLimiter holds a request until sem admits it, or until the client
// goes away.
func inflightLimiter(sem *semaphore.Weighted) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sem.Acquire(r.Context(), 1); err != nil {
				newErrorReply(ServiceUnavailable, err.Error()).Send(w, r)
				return
			}
			defer sem.Release(1)
			next.ServeHTTP(w, r)
		})
	}
}
