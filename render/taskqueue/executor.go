// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrExecutorStopped is returned when submitting to a stopped executor.
var ErrExecutorStopped = errors.New("ExecutorStopped")

// Executor runs submitted functions one at a time, in submission order, on a
// private goroutine.
type Executor struct {
	name    string
	cond    *sync.Cond
	tasks   []func()
	running bool
	stopped bool
	exited  chan struct{}
}

// NewExecutor starts an executor. Stop must be called to release its goroutine.
func NewExecutor(name string) *Executor {
	e := &Executor{
		name:   name,
		cond:   sync.NewCond(&sync.Mutex{}),
		exited: make(chan struct{}),
	}
	go e.loop()
	return e
}

// Submit queues fn without waiting for it.
func (e *Executor) Submit(fn func()) error {
	e.cond.L.Lock()
	defer e.cond.L.Unlock()

	if e.stopped {
		return ErrExecutorStopped
	}
	e.tasks = append(e.tasks, fn)
	e.cond.Signal()
	return nil
}

// Do queues fn and blocks until it has run, returning its error. Calling Do
// from a function running on the same executor deadlocks.
func (e *Executor) Do(fn func() error) error {
	result := make(chan error, 1)
	err := e.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("executor %s: task panicked: %v", e.name, r)
			}
		}()
		result <- fn()
	})
	if err != nil {
		return err
	}
	return <-result
}

// Pending returns the number of queued tasks, including a running one.
func (e *Executor) Pending() int {
	e.cond.L.Lock()
	defer e.cond.L.Unlock()

	n := len(e.tasks)
	if e.running {
		n++
	}
	return n
}

// Stop rejects new tasks, lets the queued ones finish and waits for the
// executor goroutine to exit.
func (e *Executor) Stop() {
	e.cond.L.Lock()
	e.stopped = true
	e.cond.Broadcast()
	e.cond.L.Unlock()

	<-e.exited
}

func (e *Executor) loop() {
	defer close(e.exited)

	for {
		e.cond.L.Lock()
		for len(e.tasks) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if len(e.tasks) == 0 {
			e.cond.L.Unlock()
			return
		}
		fn := e.tasks[0]
		e.tasks[0] = nil
		e.tasks = e.tasks[1:]
		e.running = true
		e.cond.L.Unlock()

		e.run(fn)

		e.cond.L.Lock()
		e.running = false
		e.cond.L.Unlock()
	}
}

func (e *Executor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("executor", e.name).Errorf("Task panicked: %v", r)
		}
	}()
	fn()
}
