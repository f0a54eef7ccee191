// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"

	"go.formrender.dev/render/interop"
)

type EventType = string

const (
	RenderTaskDone        = EventType("form.renderTaskDone")
	StopRenderingTaskDone = EventType("form.stopRenderingTaskDone")
	RecycleForm           = EventType("form.recycle")
	RecycleFormFailed     = EventType("form.recycleFailed")
)

// SupplyEvent is one reply delivered to the form supply.
type SupplyEvent struct {
	Time       string         `json:"time"`
	Type       EventType      `json:"type"`
	FormID     interop.FormID `json:"formId"`
	Reply      interop.Reply  `json:"reply"`
	StatusData []byte         `json:"statusData,omitempty"`
}

// EventLog is the form supply of the standalone server. It keeps every reply
// so that clients can poll them from /test/eventLog.
type EventLog struct {
	lock   sync.Mutex
	events []SupplyEvent
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) append(t EventType, formID interop.FormID, reply interop.Reply, statusData []byte) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.events = append(l.events, SupplyEvent{
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Type:       t,
		FormID:     formID,
		Reply:      reply,
		StatusData: statusData,
	})
}

func (l *EventLog) OnRenderTaskDone(formID interop.FormID, reply interop.Reply) {
	l.append(RenderTaskDone, formID, reply, nil)
}

func (l *EventLog) OnStopRenderingTaskDone(formID interop.FormID, reply interop.Reply) {
	l.append(StopRenderingTaskDone, formID, reply, nil)
}

func (l *EventLog) OnRecycleForm(formID interop.FormID, statusData []byte, reply interop.Reply) {
	l.append(RecycleForm, formID, reply, statusData)
}

func (l *EventLog) OnRecycleFormFailed(formID interop.FormID, reply interop.Reply) {
	l.append(RecycleFormFailed, formID, reply, nil)
}

// Events returns a copy of the log.
func (l *EventLog) Events() []SupplyEvent {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]SupplyEvent(nil), l.events...)
}

func EventLogHandler(w http.ResponseWriter, r *http.Request, eventLog *EventLog) {
	events := eventLog.Events()
	if events == nil {
		events = []SupplyEvent{}
	}
	render.JSON(w, r, events)
}
