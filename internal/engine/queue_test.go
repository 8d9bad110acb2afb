package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stampview/internal/txn"
)

func TestRefreshQueue_FIFO(t *testing.T) {
	q := newRefreshQueue()
	for _, name := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(txn.RefreshEvent{Name: name}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		ev, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, ev.Name)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestRefreshQueue_SignalCoalesces(t *testing.T) {
	q := newRefreshQueue()
	q.Enqueue(txn.RefreshEvent{Name: "a"})
	q.Enqueue(txn.RefreshEvent{Name: "b"})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestRefreshQueue_Close(t *testing.T) {
	q := newRefreshQueue()
	q.Close()
	q.Close()
	assert.False(t, q.Enqueue(txn.RefreshEvent{}))

	_, open := <-q.Wait()
	assert.False(t, open, "close wakes waiters")
}

func TestRefreshQueue_ConcurrentEnqueue(t *testing.T) {
	q := newRefreshQueue()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(txn.RefreshEvent{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())
}
