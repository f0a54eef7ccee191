// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// PingHandler answers liveness checks of the render service with "pong".
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("pong")); err != nil {
		log.WithError(err).WithField("remoteAddr", r.RemoteAddr).Warn("Failed to answer ping")
	}
}
