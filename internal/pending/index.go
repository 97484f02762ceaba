package pending

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/pkg/hid"
)

const btreeDegree = 16

func byKey(a, b *invocation.Pending) bool { return a.Key < b.Key }

// Namespace holds one owner's pending entries.
type Namespace struct {
	owner string
	// base holds the encoded owner level; every key of the namespace
	// starts with base.Prefix().
	base *hid.Builder

	mu      sync.Mutex
	entries *btree.BTreeG[*invocation.Pending]
}

func newNamespace(owner string) *Namespace {
	return &Namespace{owner: owner, base: ownerBase(owner), entries: btree.NewG(btreeDegree, byKey)}
}

// Owner returns the client id the namespace belongs to.
func (n *Namespace) Owner() string { return n.owner }

// Lock exposes the namespace mutex so a caller can make an insert atomic
// with its own follow-up work (the scheduler enqueues under it).
func (n *Namespace) Lock()   { n.mu.Lock() }
func (n *Namespace) Unlock() { n.mu.Unlock() }

// InsertLocked adds p. A PENDING entry with the same key is a duplicate;
// a stale non-pending one is replaced. Caller holds the lock.
func (n *Namespace) InsertLocked(p *invocation.Pending) error {
	if !strings.HasPrefix(p.Key, n.base.Prefix()) {
		return fmt.Errorf("%w: key %q is outside client %s", invocation.ErrInvalidArgument, p.Key, n.owner)
	}
	if old, ok := n.entries.Get(p); ok && old.IsPending() {
		return fmt.Errorf("%w: %s", invocation.ErrDuplicateIdentifier, p.Request.ID)
	}
	n.entries.ReplaceOrInsert(p)
	return nil
}

// removeLocked unlinks p only if the stored entry is p itself.
func (n *Namespace) removeLocked(p *invocation.Pending) bool {
	cur, ok := n.entries.Get(p)
	if !ok || cur != p {
		return false
	}
	n.entries.Delete(p)
	return true
}

// queryPrefix is QueryPrefix over the cached owner level.
func (n *Namespace) queryPrefix(idPrefix string) string {
	p, _ := n.base.Open(TagRequest, idPrefix)
	return p
}

// scanLocked visits entries whose key starts with prefix, in key order.
func (n *Namespace) scanLocked(prefix string, fn func(p *invocation.Pending) bool) {
	n.entries.AscendGreaterOrEqual(&invocation.Pending{Key: prefix}, func(p *invocation.Pending) bool {
		if !strings.HasPrefix(p.Key, prefix) {
			return false
		}
		return fn(p)
	})
}

// Len returns the number of stored entries.
func (n *Namespace) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.entries.Len()
}

// CancelFunc is invoked for every entry Cancel wins, while the namespace
// lock is held.
type CancelFunc func(p *invocation.Pending)

// Index is the prefix-indexed registry across all owners.
type Index struct {
	mu     sync.RWMutex
	byName map[string]*Namespace
	order  []*Namespace
}

// NewIndex returns an empty registry.
func NewIndex() *Index {
	return &Index{byName: make(map[string]*Namespace)}
}

// Namespace returns the owner's namespace, creating it on first use.
func (x *Index) Namespace(owner string) *Namespace {
	x.mu.RLock()
	ns, ok := x.byName[owner]
	x.mu.RUnlock()
	if ok {
		return ns
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if ns, ok = x.byName[owner]; ok {
		return ns
	}
	ns = newNamespace(owner)
	x.byName[owner] = ns
	x.order = append(x.order, ns)
	return ns
}

func (x *Index) lookup(owner string) (*Namespace, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ns, ok := x.byName[owner]
	return ns, ok
}

// targets resolves the namespaces a query touches. An empty owner means
// every namespace in first-seen order.
func (x *Index) targets(owner string) []*Namespace {
	if owner != "" {
		if ns, ok := x.lookup(owner); ok {
			return []*Namespace{ns}
		}
		return nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*Namespace, len(x.order))
	copy(out, x.order)
	return out
}

// Owners returns every owner seen so far, in first-seen order.
func (x *Index) Owners() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.order))
	for _, ns := range x.order {
		out = append(out, ns.owner)
	}
	return out
}

// Insert registers p in its owner's namespace.
func (x *Index) Insert(p *invocation.Pending) error {
	ns := x.Namespace(p.Owner)
	ns.Lock()
	defer ns.Unlock()
	return ns.InsertLocked(p)
}

// Remove unlinks p. It is a no-op if p was already removed or replaced.
func (x *Index) Remove(p *invocation.Pending) bool {
	ns, ok := x.lookup(p.Owner)
	if !ok {
		return false
	}
	ns.Lock()
	defer ns.Unlock()
	return ns.removeLocked(p)
}

// OwnerOf decodes the owner level out of a composite key.
func OwnerOf(key string) (string, error) {
	k, err := hid.Decode(key)
	if err != nil {
		return "", err
	}
	if k.Len() < 1 || k.Type(0) != TagClient {
		return "", fmt.Errorf("%w: %q has no client level", invocation.ErrInvalidArgument, key)
	}
	return k.String(0), nil
}

// Count returns the number of PENDING entries matching the query.
func (x *Index) Count(owner, idPrefix string) int {
	total := 0
	for _, ns := range x.targets(owner) {
		prefix := ns.queryPrefix(idPrefix)
		ns.Lock()
		ns.scanLocked(prefix, func(p *invocation.Pending) bool {
			if p.IsPending() {
				total++
			}
			return true
		})
		ns.Unlock()
	}
	return total
}

// List returns the PENDING entries matching the query, in submission order
// within each owner and owners in first-seen order.
func (x *Index) List(owner, idPrefix string) []*invocation.Pending {
	var out []*invocation.Pending
	for _, ns := range x.targets(owner) {
		prefix := ns.queryPrefix(idPrefix)
		var part []*invocation.Pending
		ns.Lock()
		ns.scanLocked(prefix, func(p *invocation.Pending) bool {
			if p.IsPending() {
				part = append(part, p)
			}
			return true
		})
		ns.Unlock()
		sort.Slice(part, func(i, j int) bool { return part[i].Seq < part[j].Seq })
		out = append(out, part...)
	}
	return out
}

// Cancel wins every PENDING entry matching the query, unlinks it and calls
// fn for it. It returns the cancelled entries in submission order.
func (x *Index) Cancel(owner, idPrefix string, fn CancelFunc) []*invocation.Pending {
	var out []*invocation.Pending
	for _, ns := range x.targets(owner) {
		prefix := ns.queryPrefix(idPrefix)
		var won []*invocation.Pending
		ns.Lock()
		ns.scanLocked(prefix, func(p *invocation.Pending) bool {
			if p.Transition(invocation.StatePending, invocation.StateCancelled) {
				won = append(won, p)
			}
			return true
		})
		for _, p := range won {
			ns.removeLocked(p)
			if fn != nil {
				fn(p)
			}
		}
		ns.Unlock()
		sort.Slice(won, func(i, j int) bool { return won[i].Seq < won[j].Seq })
		out = append(out, won...)
	}
	return out
}

// Len returns the number of stored entries across all namespaces.
func (x *Index) Len() int {
	n := 0
	for _, ns := range x.targets("") {
		n += ns.Len()
	}
	return n
}
