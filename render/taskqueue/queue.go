// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrQueueStopped is returned when scheduling on a stopped queue.
var ErrQueueStopped = errors.New("QueueStopped")

type task struct {
	name  string
	due   time.Time
	seq   uint64
	fn    func()
	index int
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Queue is a single-goroutine task runner. Tasks run one at a time in order of
// their due time; tasks due at the same instant run in submission order.
//
// Named tasks are coalesced: scheduling a name that is still pending replaces
// the pending task. A task cancelled before it is dequeued never runs; a task
// that has been dequeued runs to completion.
type Queue struct {
	name    string
	mu      sync.Mutex
	tasks   taskHeap
	pending map[string]*task
	seq     uint64
	stopped bool
	wake    chan struct{}
	done    chan struct{}
	exited  chan struct{}
}

// NewQueue starts a queue. Stop must be called to release its goroutine.
func NewQueue(name string) *Queue {
	q := &Queue{
		name:    name,
		pending: make(map[string]*task),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go q.loop()
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Schedule runs fn after delay. An empty name schedules an anonymous task
// that cannot be cancelled or coalesced.
func (q *Queue) Schedule(name string, delay time.Duration, fn func()) error {
	if delay < 0 {
		delay = 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}

	if name != "" {
		if old, found := q.pending[name]; found {
			heap.Remove(&q.tasks, old.index)
			delete(q.pending, name)
			log.WithField("queue", q.name).Debugf("Replaced pending task %s", name)
		}
	}

	q.seq++
	t := &task{name: name, due: time.Now().Add(delay), seq: q.seq, fn: fn}
	heap.Push(&q.tasks, t)
	if name != "" {
		q.pending[name] = t
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Post runs fn as soon as every earlier due task has run.
func (q *Queue) Post(fn func()) error {
	return q.Schedule("", 0, fn)
}

// Cancel removes the pending task registered under name. It returns false when
// no such task is pending, including when the task is already running.
func (q *Queue) Cancel(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, found := q.pending[name]
	if !found {
		return false
	}
	heap.Remove(&q.tasks, t.index)
	delete(q.pending, name)
	return true
}

// IsPending reports whether a task is pending under name.
func (q *Queue) IsPending(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, found := q.pending[name]
	return found
}

// Len returns the number of tasks not yet dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Stop drops every pending task and waits for a running task to finish. It
// must not be called from a task of the same queue.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		<-q.exited
		return
	}
	q.stopped = true
	q.tasks = nil
	q.pending = make(map[string]*task)
	q.mu.Unlock()

	close(q.done)
	<-q.exited
}

func (q *Queue) next() (*task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, -1
	}
	head := q.tasks[0]
	if wait := time.Until(head.due); wait > 0 {
		return nil, wait
	}
	heap.Pop(&q.tasks)
	if head.name != "" {
		delete(q.pending, head.name)
	}
	return head, 0
}

func (q *Queue) loop() {
	defer close(q.exited)

	for {
		t, wait := q.next()
		if t != nil {
			q.run(t)
			continue
		}

		var timer *time.Timer
		var fire <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-q.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-q.wake:
		case <-fire:
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

func (q *Queue) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("queue", q.name).Errorf("Task %q panicked: %v", t.name, r)
		}
	}()
	t.fn()
}
