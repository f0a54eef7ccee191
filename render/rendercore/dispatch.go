// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package rendercore

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"go.formrender.dev/render/interop"
)

// Dispatch runs the operation named by req and returns its outcome.
func (m *Manager) Dispatch(req *interop.Request) *interop.Response {
	start := time.Now()

	var err error
	code := interop.ResultOK
	switch req.Op {
	case interop.OpRenderForm:
		err = m.RenderForm(req.FormInfo, req.Params, req.Supply)
	case interop.OpStopRenderingForm:
		err = m.StopRenderingForm(req.FormInfo, req.Params, req.Supply)
	case interop.OpReleaseRenderer:
		err = m.ReleaseRenderer(req.FormID, req.CompID, req.Params.ClientID)
	case interop.OpCleanFormHost:
		err = m.CleanFormHost(req.HostToken)
	case interop.OpReloadForm:
		err = m.ReloadForm(req.FormInfos, req.Params)
	case interop.OpOnUnlock:
		err = m.OnUnlock()
	case interop.OpRecycleForm:
		err = m.RecycleForm(req.FormID, req.Params)
	case interop.OpRecoverForm:
		var restored bool
		restored, err = m.RecoverForm(req.FormInfo, req.Params)
		if err == nil && !restored {
			code = interop.ResultEmptyStatusData
		}
	case interop.OpSetVisibleChange:
		err = m.SetVisibleChange(req.FormID, req.Visible, req.Params.ClientID)
	case interop.OpUpdateFormSize:
		err = m.UpdateFormSize(req.FormID, req.Width, req.Height, req.BorderWidth, req.Params.ClientID)
	case interop.OpConfigurationUpdated:
		if len(req.Configuration) == 0 {
			err = fmt.Errorf("%w: empty configuration", ErrInvalidParam)
			break
		}
		m.OnConfigurationUpdated(interop.NewConfiguration(req.Configuration))
	case interop.OpSetScreenOn:
		m.SetScreenOn(req.ScreenOn)
	default:
		err = fmt.Errorf("%w: %s", ErrInvalidParam, req.Op)
	}

	if err != nil {
		code = ResultCodeOf(err)
	}
	m.metrics.RecordOperation(req.Op, code, time.Since(start))

	resp := &interop.Response{Op: req.Op, Code: code}
	if req.Op == interop.OpRenderForm || req.Op == interop.OpRecoverForm {
		resp.HostToken = req.Params.HostToken
	}
	if err != nil {
		resp.Message = err.Error()
		log.WithError(err).WithField("op", req.Op).WithField("code", code).Debug("Operation failed")
	}
	return resp
}
