// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package memory implements the memory-pressure sinks of the render service.
package memory

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// Flag is an in-process critical flag.
type Flag struct {
	critical    atomic.Bool
	transitions atomic.Int64
}

func (f *Flag) SetCritical(critical bool) {
	if f.critical.Swap(critical) != critical {
		f.transitions.Add(1)
	}
}

func (f *Flag) IsCritical() bool {
	return f.critical.Load()
}

// Transitions returns how many times the flag changed value.
func (f *Flag) Transitions() int64 {
	return f.transitions.Load()
}

// Sink is the interface of the wrapped memory-pressure sink.
type Sink interface {
	SetCritical(critical bool)
	IsCritical() bool
}

// ReportingSink forwards to another sink and logs the resident set size of
// the process every time the signal changes.
type ReportingSink struct {
	next Sink
	mu   sync.Mutex
	proc *process.Process
}

// NewReportingSink wraps next. Memory readings are skipped when the process
// cannot be inspected.
func NewReportingSink(next Sink) *ReportingSink {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.WithError(err).Warn("Process memory readings unavailable")
		proc = nil
	}
	return &ReportingSink{next: next, proc: proc}
}

func (s *ReportingSink) SetCritical(critical bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.next.IsCritical() != critical
	s.next.SetCritical(critical)
	if !changed {
		return
	}

	entry := log.WithField("critical", critical)
	if rss, ok := s.residentBytes(); ok {
		entry = entry.WithField("rssBytes", rss)
	}
	entry.Info("Memory pressure signal changed")
}

func (s *ReportingSink) IsCritical() bool {
	return s.next.IsCritical()
}

func (s *ReportingSink) residentBytes() (uint64, bool) {
	if s.proc == nil {
		return 0, false
	}
	info, err := s.proc.MemoryInfo()
	if err != nil {
		log.WithError(err).Debug("Failed to read process memory")
		return 0, false
	}
	return info.RSS, true
}
