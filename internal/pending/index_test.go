package pending

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
)

type fixture struct {
	idx *Index
	seq uint64
}

func (f *fixture) add(t *testing.T, owner, id string) *invocation.Pending {
	t.Helper()
	key, err := Key(owner, id)
	require.NoError(t, err)
	f.seq++
	p := invocation.NewPending(key, owner, invocation.Request{ID: id, Attachment: "att-" + id}, 0, f.seq, false)
	require.NoError(t, f.idx.Insert(p))
	return p
}

func ids(ps []*invocation.Pending) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Request.ID)
	}
	return out
}

// CL1 submits I-1-1, I-1-2, I-2-1, I-2-2 and CL2 submits I-1-1.
func seeded(t *testing.T) *fixture {
	f := &fixture{idx: NewIndex()}
	f.add(t, "CL1", "I-1-1;")
	f.add(t, "CL1", "I-1-2;")
	f.add(t, "CL1", "I-2-1;")
	f.add(t, "CL1", "I-2-2;")
	f.add(t, "CL2", "I-1-1;")
	return f
}

func TestKeyFormat(t *testing.T) {
	k, err := Key("CL1", "I-1-1;")
	require.NoError(t, err)
	assert.Equal(t, "CCL1.II-1-1;..", k)

	owner, err := OwnerOf(k)
	require.NoError(t, err)
	assert.Equal(t, "CL1", owner)

	assert.Equal(t, "CCL1.II-1-", QueryPrefix("CL1", "I-1-"))
	assert.Equal(t, "CCL1.I", QueryPrefix("CL1", ""))

	_, err = Key("", "x")
	assert.ErrorIs(t, err, invocation.ErrInvalidArgument)
	_, err = Key("CL1", "a.b")
	assert.ErrorIs(t, err, invocation.ErrInvalidArgument)
}

func TestCountByPrefix(t *testing.T) {
	f := seeded(t)
	assert.Equal(t, 2, f.idx.Count("CL1", "I-1-"))
	assert.Equal(t, 4, f.idx.Count("CL1", "I-"))
	assert.Equal(t, 4, f.idx.Count("CL1", ""))
	assert.Equal(t, 5, f.idx.Count("", ""))
	assert.Equal(t, 2, f.idx.Count("", "I-1-1"))
	assert.Equal(t, 0, f.idx.Count("CL3", ""))
}

func TestCancelByPrefix(t *testing.T) {
	f := seeded(t)
	var seen []string
	won := f.idx.Cancel("CL1", "I-2-", func(p *invocation.Pending) { seen = append(seen, p.Request.ID) })
	assert.Equal(t, []string{"I-2-1;", "I-2-2;"}, ids(won))
	assert.Equal(t, []string{"I-2-1;", "I-2-2;"}, seen)
	for _, p := range won {
		assert.Equal(t, invocation.StateCancelled, p.State())
	}
	assert.Equal(t, 3, f.idx.Count("", ""))
	assert.Equal(t, 1, f.idx.Count("CL2", ""))
}

func TestListInSubmissionOrder(t *testing.T) {
	f := seeded(t)
	f.idx.Cancel("CL1", "I-1-2;", nil)

	got := f.idx.List("CL1", "I")
	assert.Equal(t, []string{"I-1-1;", "I-2-1;", "I-2-2;"}, ids(got))
	assert.Equal(t, "att-I-2-1;", got[1].Ref().Attachment)

	all := f.idx.List("", "")
	require.Len(t, all, 4)
	assert.Equal(t, "CL2", all[3].Owner)
}

func TestListOrdersBySeqNotKey(t *testing.T) {
	f := &fixture{idx: NewIndex()}
	f.add(t, "CL1", "b")
	f.add(t, "CL1", "a")
	f.add(t, "CL1", "c")
	assert.Equal(t, []string{"b", "a", "c"}, ids(f.idx.List("CL1", "")))
}

func TestDuplicateThenReuse(t *testing.T) {
	f := &fixture{idx: NewIndex()}
	first := f.add(t, "CL1", "X")

	key, _ := Key("CL1", "X")
	dup := invocation.NewPending(key, "CL1", invocation.Request{ID: "X"}, 0, 99, false)
	assert.ErrorIs(t, f.idx.Insert(dup), invocation.ErrDuplicateIdentifier)
	assert.Equal(t, 1, f.idx.Count("CL1", ""))

	// Same id under another owner is fine.
	f.add(t, "CL2", "X")

	require.True(t, first.Transition(invocation.StatePending, invocation.StateDispatched))
	assert.Equal(t, 0, f.idx.Count("CL1", ""))

	again := f.add(t, "CL1", "X")
	assert.Equal(t, 1, f.idx.Count("CL1", ""))

	// Late removal of the first entry must not unlink its replacement.
	assert.False(t, f.idx.Remove(first))
	assert.Equal(t, 1, f.idx.Count("CL1", ""))
	assert.True(t, f.idx.Remove(again))
	assert.Equal(t, 0, f.idx.Count("CL1", ""))
}

func TestPrefixDoesNotCrossOwners(t *testing.T) {
	f := &fixture{idx: NewIndex()}
	f.add(t, "CL1", "a")
	f.add(t, "CL10", "a")
	assert.Equal(t, 1, f.idx.Count("CL1", ""))
	assert.Equal(t, []string{"CL1", "CL10"}, f.idx.Owners())
}

func TestInsertRejectsKeyOfOtherOwner(t *testing.T) {
	idx := NewIndex()
	key, err := Key("CL10", "a")
	require.NoError(t, err)
	p := invocation.NewPending(key, "CL1", invocation.Request{ID: "a"}, 0, 1, false)
	require.ErrorIs(t, idx.Insert(p), invocation.ErrInvalidArgument)
	assert.Equal(t, 0, idx.Count("CL1", ""))
}

func TestConcurrentInsertAndCancel(t *testing.T) {
	idx := NewIndex()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := string(rune('a'+w)) + "-" + string(rune('0'+i%10)) + "-" + string(rune('A'+i/10))
				key, err := Key("CL", id)
				if err != nil {
					t.Error(err)
					return
				}
				_ = idx.Insert(invocation.NewPending(key, "CL", invocation.Request{ID: id}, 0, uint64(i), false))
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 800, idx.Count("CL", ""))
	won := idx.Cancel("", "a-", nil)
	assert.Len(t, won, 100)
	assert.Equal(t, 700, idx.Count("CL", ""))
	assert.Equal(t, 700, idx.Len())
}
