package dispatch

import (
	"container/list"
	"sync"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
)

// DefaultLanes is used when NewQueue is given a non-positive count.
const DefaultLanes = 4

// Queue is a set of priority lanes. Safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	lanes []*list.List
	byKey map[string]*list.Element
}

// NewQueue returns a queue with the given number of lanes.
func NewQueue(lanes int) *Queue {
	if lanes <= 0 {
		lanes = DefaultLanes
	}
	q := &Queue{lanes: make([]*list.List, lanes), byKey: make(map[string]*list.Element)}
	for i := range q.lanes {
		q.lanes[i] = list.New()
	}
	return q
}

// Lanes returns the number of priority classes.
func (q *Queue) Lanes() int { return len(q.lanes) }

// Clamp maps any priority onto a valid lane index.
func (q *Queue) Clamp(priority int) int {
	if priority < 0 {
		return 0
	}
	if priority >= len(q.lanes) {
		return len(q.lanes) - 1
	}
	return priority
}

// Enqueue appends p to the back of its lane.
func (q *Queue) Enqueue(p *invocation.Pending) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if old, ok := q.byKey[p.Key]; ok {
		// A stale entry under a reused key; the new request supersedes it.
		q.unlinkLocked(old)
	}
	q.byKey[p.Key] = q.lanes[q.Clamp(p.Priority)].PushBack(p)
}

// EnqueueFront puts p at the head of its lane, ahead of everything else
// queued at that priority.
func (q *Queue) EnqueueFront(p *invocation.Pending) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if old, ok := q.byKey[p.Key]; ok {
		q.unlinkLocked(old)
	}
	q.byKey[p.Key] = q.lanes[q.Clamp(p.Priority)].PushFront(p)
}

// Dequeue returns the oldest request of the highest lane that eligible
// accepts, already moved to DISPATCHED. Entries found no longer PENDING are
// dropped on the way. It returns nil when nothing fits.
func (q *Queue) Dequeue(eligible func(p *invocation.Pending) bool) *invocation.Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, lane := range q.lanes {
		var next *list.Element
		for e := lane.Front(); e != nil; e = next {
			next = e.Next()
			p := e.Value.(*invocation.Pending)
			if !p.IsPending() {
				q.unlinkLocked(e)
				continue
			}
			if eligible != nil && !eligible(p) {
				continue
			}
			if !p.Transition(invocation.StatePending, invocation.StateDispatched) {
				q.unlinkLocked(e)
				continue
			}
			q.unlinkLocked(e)
			return p
		}
	}
	return nil
}

// DequeueFor is Dequeue with the request's own requirements evaluated
// against attrs.
func (q *Queue) DequeueFor(attrs invocation.Attributes) *invocation.Pending {
	return q.Dequeue(func(p *invocation.Pending) bool { return p.Request.Eligible(attrs) })
}

// Remove pulls p out of its lane. It reports false if p is not queued,
// which is the case once it has been dispatched.
func (q *Queue) Remove(p *invocation.Pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byKey[p.Key]
	if !ok || e.Value.(*invocation.Pending) != p {
		return false
	}
	q.unlinkLocked(e)
	return true
}

// Drain empties every lane and returns what was queued, highest lane first.
func (q *Queue) Drain() []*invocation.Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*invocation.Pending, 0, len(q.byKey))
	for _, lane := range q.lanes {
		for e := lane.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(*invocation.Pending))
		}
		lane.Init()
	}
	q.byKey = make(map[string]*list.Element)
	return out
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byKey)
}

// LaneLens returns the length of each lane, highest priority first.
func (q *Queue) LaneLens() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, len(q.lanes))
	for i, l := range q.lanes {
		out[i] = l.Len()
	}
	return out
}

func (q *Queue) unlinkLocked(e *list.Element) {
	p := e.Value.(*invocation.Pending)
	lane := q.lanes[q.Clamp(p.Priority)]
	lane.Remove(e)
	if cur, ok := q.byKey[p.Key]; ok && cur == e {
		delete(q.byKey, p.Key)
	}
}
