// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(0, 0, nil)
	q.Start()
	defer q.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, q.Add(Job{
			Description: "job",
			Run: func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		}))
	}
	require.NoError(t, q.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestQueue_DoneReceivesError(t *testing.T) {
	q := NewQueue(0, 0, nil)
	q.Start()
	defer q.Close()

	boom := errors.New("boom")
	got := make(chan error, 1)
	require.NoError(t, q.Add(Job{
		Run:  func(context.Context) error { return boom },
		Done: func(err error) { got <- err },
	}))
	assert.ErrorIs(t, <-got, boom)
}

func TestQueue_PanicBecomesError(t *testing.T) {
	q := NewQueue(0, 0, nil)
	q.Start()
	defer q.Close()

	got := make(chan error, 1)
	require.NoError(t, q.Add(Job{
		Description: "bad",
		Run:         func(context.Context) error { panic("oops") },
		Done:        func(err error) { got <- err },
	}))
	err := <-got
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")

	// The worker survives.
	require.NoError(t, q.Flush(context.Background()))
}

func TestQueue_MaxSize(t *testing.T) {
	q := NewQueue(1, 0, nil)
	require.NoError(t, q.Add(Job{Run: func(context.Context) error { return nil }}))
	assert.ErrorIs(t, q.Add(Job{Run: func(context.Context) error { return nil }}), ErrQueueFull)
	q.Start()
	q.Close()
}

func TestQueue_CloseDrains(t *testing.T) {
	q := NewQueue(0, 0, nil)
	ran := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Add(Job{Run: func(context.Context) error { ran++; return nil }}))
	}
	q.Start()
	q.Close()
	assert.Equal(t, 3, ran)
	assert.ErrorIs(t, q.Add(Job{Run: func(context.Context) error { return nil }}), ErrQueueClosed)
	q.Close()
}

func TestQueue_AbortCancelsRunning(t *testing.T) {
	q := NewQueue(0, time.Minute, nil)
	q.Start()

	started := make(chan struct{})
	result := make(chan error, 1)
	require.NoError(t, q.Add(Job{
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		Done: func(err error) { result <- err },
	}))
	skipped := true
	require.NoError(t, q.Add(Job{Run: func(context.Context) error { skipped = false; return nil }}))

	<-started
	q.Abort()
	assert.ErrorIs(t, <-result, context.Canceled)
	assert.True(t, skipped, "queued job ran after Abort")
}

func TestQueue_JobTimeout(t *testing.T) {
	q := NewQueue(0, 20*time.Millisecond, nil)
	q.Start()
	defer q.Close()

	result := make(chan error, 1)
	require.NoError(t, q.Add(Job{
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Done: func(err error) { result <- err },
	}))
	assert.ErrorIs(t, <-result, context.DeadlineExceeded)
}
