// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
)

func ShutdownHandler(w http.ResponseWriter, r *http.Request, s RenderServer, shutdownFunc context.CancelFunc) {
	if err := s.Shutdown(); err != nil {
		log.WithError(err).Warn("Render manager shut down with errors")
	}

	state := s.InternalState()
	w.Header().Set("Content-Type", "application/json")
	w.Write(state.AsJSON())

	if shutdownFunc != nil {
		shutdownFunc()
	}
}
