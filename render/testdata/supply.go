// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testdata

import (
	"fmt"
	"sync"

	"go.formrender.dev/render/interop"
)

// Callback names the FormSupply method that delivered a reply.
type Callback string

const (
	RenderTaskDone        Callback = "OnRenderTaskDone"
	StopRenderingTaskDone Callback = "OnStopRenderingTaskDone"
	RecycleForm           Callback = "OnRecycleForm"
	RecycleFormFailed     Callback = "OnRecycleFormFailed"
)

// SupplyReply is one reply received by MockSupply.
type SupplyReply struct {
	Callback   Callback
	FormID     interop.FormID
	Reply      interop.Reply
	StatusData []byte
}

// MockSupply records every reply and flags requests resolved more than once.
// A request is identified by its callback and correlation event id.
type MockSupply struct {
	mu       sync.Mutex
	replies  []SupplyReply
	resolved map[string]int
	notify   chan SupplyReply
}

// NewMockSupply returns an empty supply.
func NewMockSupply() *MockSupply {
	return &MockSupply{
		resolved: make(map[string]int),
		notify:   make(chan SupplyReply, 64),
	}
}

func (s *MockSupply) record(r SupplyReply) {
	s.mu.Lock()
	s.replies = append(s.replies, r)
	s.resolved[fmt.Sprintf("%s/%s", r.Callback, r.Reply.Params.EventID)]++
	s.mu.Unlock()

	select {
	case s.notify <- r:
	default:
	}
}

func (s *MockSupply) OnRenderTaskDone(formID interop.FormID, reply interop.Reply) {
	s.record(SupplyReply{Callback: RenderTaskDone, FormID: formID, Reply: reply})
}

func (s *MockSupply) OnStopRenderingTaskDone(formID interop.FormID, reply interop.Reply) {
	s.record(SupplyReply{Callback: StopRenderingTaskDone, FormID: formID, Reply: reply})
}

func (s *MockSupply) OnRecycleForm(formID interop.FormID, statusData []byte, reply interop.Reply) {
	s.record(SupplyReply{Callback: RecycleForm, FormID: formID, Reply: reply, StatusData: statusData})
}

func (s *MockSupply) OnRecycleFormFailed(formID interop.FormID, reply interop.Reply) {
	s.record(SupplyReply{Callback: RecycleFormFailed, FormID: formID, Reply: reply})
}

// Replies returns the replies delivered through callback, in arrival order.
func (s *MockSupply) Replies(callback Callback) []SupplyReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []SupplyReply
	for _, r := range s.replies {
		if r.Callback == callback {
			res = append(res, r)
		}
	}
	return res
}

// All returns every reply in arrival order.
func (s *MockSupply) All() []SupplyReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SupplyReply(nil), s.replies...)
}

// Duplicates returns the requests that were resolved more than once.
func (s *MockSupply) Duplicates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []string
	for key, n := range s.resolved {
		if n > 1 {
			res = append(res, key)
		}
	}
	return res
}

// Notifications delivers replies as they arrive. Replies are dropped when
// nobody reads and the buffer is full.
func (s *MockSupply) Notifications() <-chan SupplyReply {
	return s.notify
}
