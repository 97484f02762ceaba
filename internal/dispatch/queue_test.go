package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
)

var seq uint64

func req(id string, prio int, pred invocation.Predicate) *invocation.Pending {
	seq++
	return invocation.NewPending("K"+id, "CL", invocation.Request{ID: id, Requirements: pred}, prio, seq, false)
}

func dequeueIDs(q *Queue, attrs invocation.Attributes) []string {
	var out []string
	for {
		p := q.DequeueFor(attrs)
		if p == nil {
			return out
		}
		out = append(out, p.Request.ID)
	}
}

func TestStrictLaneOrder(t *testing.T) {
	q := NewQueue(3)
	q.Enqueue(req("low-1", 2, nil))
	q.Enqueue(req("mid-1", 1, nil))
	q.Enqueue(req("high-1", 0, nil))
	q.Enqueue(req("low-2", 2, nil))
	q.Enqueue(req("high-2", 0, nil))

	assert.Equal(t, []int{2, 1, 2}, q.LaneLens())
	assert.Equal(t, []string{"high-1", "high-2", "mid-1", "low-1", "low-2"}, dequeueIDs(q, nil))
	assert.Equal(t, 0, q.Len())
}

func TestEnqueueFrontJumpsItsLane(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue(req("a", 1, nil))
	q.Enqueue(req("b", 1, nil))
	q.Enqueue(req("hi", 0, nil))
	back := req("back", 1, nil)
	q.EnqueueFront(back)

	assert.Equal(t, 4, q.Len())
	assert.Equal(t, []string{"hi", "back", "a", "b"}, dequeueIDs(q, nil))
}

func TestDequeueMarksDispatched(t *testing.T) {
	q := NewQueue(1)
	p := req("a", 0, nil)
	q.Enqueue(p)
	got := q.DequeueFor(nil)
	require.Same(t, p, got)
	assert.Equal(t, invocation.StateDispatched, p.State())
	assert.False(t, q.Remove(p))
}

func TestIneligibleStaysInPlace(t *testing.T) {
	gpuOnly := invocation.PredicateFunc(func(a invocation.Attributes) bool { return a["gpu"] == true })
	q := NewQueue(2)
	q.Enqueue(req("gpu", 0, gpuOnly))
	q.Enqueue(req("any-high", 0, nil))
	q.Enqueue(req("any-low", 1, nil))

	assert.Equal(t, "any-high", q.DequeueFor(invocation.Attributes{}).Request.ID)
	assert.Equal(t, "any-low", q.DequeueFor(invocation.Attributes{}).Request.ID)
	assert.Nil(t, q.DequeueFor(invocation.Attributes{}))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, "gpu", q.DequeueFor(invocation.Attributes{"gpu": true}).Request.ID)
}

func TestClampOutOfRange(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue(req("neg", -5, nil))
	q.Enqueue(req("big", 99, nil))
	assert.Equal(t, []int{1, 1}, q.LaneLens())
	assert.Equal(t, []string{"neg", "big"}, dequeueIDs(q, nil))
}

func TestRemoveAndLazyDrop(t *testing.T) {
	q := NewQueue(1)
	a, b, c := req("a", 0, nil), req("b", 0, nil), req("c", 0, nil)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	assert.True(t, q.Remove(b))
	assert.False(t, q.Remove(b))

	// Cancelled without being removed: skipped and dropped by Dequeue.
	require.True(t, a.Transition(invocation.StatePending, invocation.StateCancelled))
	assert.Equal(t, []string{"c"}, dequeueIDs(q, nil))
	assert.Equal(t, 0, q.Len())
}

func TestDrain(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue(req("l", 1, nil))
	q.Enqueue(req("h", 0, nil))
	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "h", got[0].Request.ID)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, []int{0, 0}, q.LaneLens())
}

func TestConcurrentDequeueExactlyOnce(t *testing.T) {
	q := NewQueue(DefaultLanes)
	const n = 500
	for i := 0; i < n; i++ {
		q.Enqueue(invocation.NewPending("k"+string(rune(i+256)), "CL", invocation.Request{ID: "x"}, i%DefaultLanes, uint64(i), false))
	}
	var got atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q.DequeueFor(nil) != nil {
				got.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(n), got.Load())
}
