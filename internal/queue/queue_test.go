package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 100, q.Len())

	for i := 0; i < 100; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	done := make(chan string, 1)
	go func() {
		v, ok := q.Pop()
		require.True(t, ok)
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push("hello")
	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueueCloseUnblocksConsumers(t *testing.T) {
	q := New[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
}

func TestQueueCloseReportsDropped(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	assert.Equal(t, 3, q.Close())
	assert.Equal(t, 0, q.Close(), "second Close must report nothing dropped")

	assert.False(t, q.Push(4), "Push after Close must drop")
	_, ok := q.Pop()
	assert.False(t, ok)
}
