// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(s string) func() {
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, s)
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func drain(t *testing.T, q *Queue) {
	done := make(chan struct{})
	require.NoError(t, q.Schedule("", 0, func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain")
	}
}

func TestQueueRunsInDelayOrder(t *testing.T) {
	q := NewQueue("test")
	defer q.Stop()

	r := &recorder{}
	require.NoError(t, q.Schedule("late", 60*time.Millisecond, r.add("late")))
	require.NoError(t, q.Schedule("early", 20*time.Millisecond, r.add("early")))
	require.NoError(t, q.Post(r.add("now")))

	time.Sleep(120 * time.Millisecond)
	drain(t, q)
	assert.Equal(t, []string{"now", "early", "late"}, r.get())
}

func TestQueueRunsImmediateTasksInSubmissionOrder(t *testing.T) {
	q := NewQueue("test")
	defer q.Stop()

	r := &recorder{}
	for _, s := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Post(r.add(s)))
	}
	drain(t, q)
	assert.Equal(t, []string{"a", "b", "c", "d"}, r.get())
}

func TestQueueCoalescesSameName(t *testing.T) {
	q := NewQueue("test")
	defer q.Stop()

	r := &recorder{}
	require.NoError(t, q.Schedule("config", 30*time.Millisecond, r.add("first")))
	require.NoError(t, q.Schedule("config", 30*time.Millisecond, r.add("second")))
	assert.Equal(t, 1, q.Len())
	assert.True(t, q.IsPending("config"))

	time.Sleep(80 * time.Millisecond)
	drain(t, q)
	assert.Equal(t, []string{"second"}, r.get())
	assert.False(t, q.IsPending("config"))
}

func TestQueueCancelBeforeFireNeverRuns(t *testing.T) {
	q := NewQueue("test")
	defer q.Stop()

	r := &recorder{}
	require.NoError(t, q.Schedule("timeout", 20*time.Millisecond, r.add("fired")))
	assert.True(t, q.Cancel("timeout"))
	assert.False(t, q.Cancel("timeout"))

	time.Sleep(50 * time.Millisecond)
	drain(t, q)
	assert.Empty(t, r.get())
}

func TestQueueCancelWhileRunningIsNoop(t *testing.T) {
	q := NewQueue("test")
	defer q.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, q.Schedule("slow", 0, func() {
		close(started)
		<-release
		close(finished)
	}))

	<-started
	assert.False(t, q.Cancel("slow"))
	close(release)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("running task did not complete")
	}
}

func TestQueueSurvivesPanickingTask(t *testing.T) {
	q := NewQueue("test")
	defer q.Stop()

	r := &recorder{}
	require.NoError(t, q.Post(func() { panic("boom") }))
	require.NoError(t, q.Post(r.add("after")))
	drain(t, q)
	assert.Equal(t, []string{"after"}, r.get())
}

func TestQueueStopDropsPendingTasks(t *testing.T) {
	q := NewQueue("test")

	r := &recorder{}
	require.NoError(t, q.Schedule("later", time.Hour, r.add("later")))
	q.Stop()
	q.Stop()

	assert.Equal(t, ErrQueueStopped, q.Schedule("again", 0, r.add("again")))
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, r.get())
}
