package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownlinkQueueOrdering(t *testing.T) {
	q := newDownlinkQueue()
	q.enqueue([]byte{1})
	q.enqueue([]byte{2})
	q.enqueue([]byte{3})

	for _, want := range [][]byte{{1}, {2}, {3}} {
		got, ok := q.tryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.tryDequeue()
	assert.False(t, ok)
}

func TestDownlinkQueueDequeueTimesOutWhenEmpty(t *testing.T) {
	q := newDownlinkQueue()
	start := time.Now()
	_, ok := q.dequeue(20 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestDownlinkQueueDequeueWakesOnEnqueue(t *testing.T) {
	q := newDownlinkQueue()
	done := make(chan []byte, 1)
	go func() {
		pkt, _ := q.dequeue(time.Second)
		done <- pkt
	}()

	time.Sleep(10 * time.Millisecond)
	q.enqueue([]byte{9, 9})

	select {
	case pkt := <-done:
		assert.Equal(t, []byte{9, 9}, pkt)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake on enqueue")
	}
}

func TestDownlinkQueueClear(t *testing.T) {
	q := newDownlinkQueue()
	q.enqueue([]byte{1})
	q.enqueue([]byte{2})
	require.Equal(t, 2, q.size())

	q.clear()
	assert.Equal(t, 0, q.size())
	_, ok := q.tryDequeue()
	assert.False(t, ok)
}
