// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorDoReturnsTaskError(t *testing.T) {
	e := NewExecutor("test")
	defer e.Stop()

	errTest := errors.New("ErrTest")
	assert.Equal(t, errTest, e.Do(func() error { return errTest }))
	assert.NoError(t, e.Do(func() error { return nil }))
}

func TestExecutorSerializesTasks(t *testing.T) {
	e := NewExecutor("test")
	defer e.Stop()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Do(func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestExecutorKeepsSubmissionOrder(t *testing.T) {
	e := NewExecutor("test")
	defer e.Stop()

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, e.Submit(func() { order = append(order, i) }))
	}
	require.NoError(t, e.Do(func() error { return nil }))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestExecutorRecoversPanicInDo(t *testing.T) {
	e := NewExecutor("test")
	defer e.Stop()

	err := e.Do(func() error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.NoError(t, e.Do(func() error { return nil }))
}

func TestExecutorStopFinishesQueuedTasks(t *testing.T) {
	e := NewExecutor("test")

	ran := int32(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Submit(func() { atomic.AddInt32(&ran, 1) }))
	}
	e.Stop()

	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
	assert.Equal(t, ErrExecutorStopped, e.Submit(func() {}))
	assert.Equal(t, ErrExecutorStopped, e.Do(func() error { return nil }))
	assert.Equal(t, 0, e.Pending())
}
