package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/relay/internal/channel"
)

func TestQueueOrder(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[int]()
	for i := range 5 {
		q.Push(i)
	}
	q.Close()

	var got []int
	for {
		v, ok := q.Recv(context.Background())
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestQueuePushAfterClose(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[string]()
	q.Push("kept")
	q.Close()
	q.Push("dropped")

	v, ok := q.Recv(context.Background())
	require.True(t, ok)
	assert.Equal(t, "kept", v)

	_, ok = q.Recv(context.Background())
	assert.False(t, ok)
}

func TestQueueCloseIdempotent(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[int]()
	q.Close()
	q.Close()
	assert.True(t, q.Closed())

	_, ok := q.Recv(context.Background())
	assert.False(t, ok)
}

func TestQueueBlockedRecvWakesOnPush(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[int]()
	done := make(chan int, 1)

	go func() {
		v, ok := q.Recv(context.Background())
		if ok {
			done <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken by push")
	}
}

func TestQueueBlockedRecvWakesOnClose(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[int]()
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Recv(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken by close")
	}
}

func TestQueueRecvContextCancel(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Recv(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken by context cancellation")
	}
}

func TestQueueInterleavedPushRecv(t *testing.T) {
	t.Parallel()

	q := channel.NewQueue[int]()
	const n = 1000

	go func() {
		for i := range n {
			q.Push(i)
		}
		q.Close()
	}()

	var got []int
	for {
		v, ok := q.Recv(context.Background())
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Len(t, got, n)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}
