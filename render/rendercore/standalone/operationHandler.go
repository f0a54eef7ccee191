// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go.formrender.dev/render/interop"
)

// OperationHandler decodes the body into a request for op, runs it and
// renders the outcome. Replies owed to the form supply land in eventLog.
func OperationHandler(w http.ResponseWriter, r *http.Request, s RenderServer, eventLog *EventLog, op interop.Operation) {
	req := interop.Request{}
	if lerr := readBodyAndUnmarshalJSON(r, &req); lerr != nil {
		lerr.Send(w, r)
		return
	}
	req.Op = op
	req.Supply = eventLog

	switch op {
	case interop.OpRenderForm, interop.OpRecoverForm:
		if req.Params.HostToken == "" {
			req.Params.HostToken = interop.HostToken(uuid.New().String())
			log.WithField("formID", req.FormInfo.FormID).WithField("hostToken", req.Params.HostToken).Debug("Minted host token")
		}
	}

	resp := s.Dispatch(&req)
	render.Status(r, httpStatusOf(resp.Code))
	render.JSON(w, r, resp)
}
