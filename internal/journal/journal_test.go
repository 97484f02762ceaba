package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/pending"
	pebblestore "github.com/appirio-tech/arena-farm-client/internal/storage/pebble"
)

func newJournal(t *testing.T, r Retention) *Journal {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, r)
}

func outcome(t *testing.T, client, id string, state invocation.State) invocation.Outcome {
	t.Helper()
	key, err := pending.Key(client, id)
	require.NoError(t, err)
	return invocation.Outcome{Key: key, ClientID: client, RequestID: id, State: state, Value: "v-" + id}
}

func requestIDs(es []Entry) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.RequestID)
	}
	return out
}

func TestRecordAndListByPrefix(t *testing.T) {
	j := newJournal(t, Retention{})
	for _, id := range []string{"I-2-1", "I-1-1", "F-1-1", "I-1-2"} {
		require.NoError(t, j.Record(outcome(t, "CL1", id, invocation.StateCompleted)))
	}
	require.NoError(t, j.Record(outcome(t, "CL2", "I-1-1", invocation.StateCancelled)))

	got, err := j.List(context.Background(), "CL1", "I-1-", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"I-1-1", "I-1-2"}, requestIDs(got))
	assert.Equal(t, "v-I-1-1", got[0].Value)
	assert.Equal(t, invocation.StateCompleted, got[0].State)
	assert.NotEmpty(t, got[0].ID)

	all, err := j.List(context.Background(), "CL1", "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	other, err := j.List(context.Background(), "CL2", "", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, invocation.StateCancelled, other[0].State)

	_, err = j.List(context.Background(), "", "", 0)
	assert.True(t, errors.Is(err, invocation.ErrInvalidArgument))
}

func TestRecordKeepsRepeatedRequestIDs(t *testing.T) {
	j := newJournal(t, Retention{})
	require.NoError(t, j.Record(outcome(t, "CL1", "X", invocation.StateCancelled)))
	require.NoError(t, j.Record(outcome(t, "CL1", "X", invocation.StateCompleted)))
	got, err := j.List(context.Background(), "CL1", "X", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, invocation.StateCancelled, got[0].State)
	assert.Equal(t, invocation.StateCompleted, got[1].State)
}

func TestRecordUnencodableValue(t *testing.T) {
	j := newJournal(t, Retention{})
	o := outcome(t, "CL1", "ch", invocation.StateCompleted)
	o.Value = make(chan int)
	require.NoError(t, j.Record(o))
	got, err := j.List(context.Background(), "CL1", "ch", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.IsType(t, "", got[0].Value)
}

func TestTrimByCount(t *testing.T) {
	j := newJournal(t, Retention{MaxEntries: 2})
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, j.Record(outcome(t, "CL1", id, invocation.StateCompleted)))
		time.Sleep(2 * time.Millisecond)
	}
	n, err := j.Trim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	got, err := j.List(context.Background(), "CL1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, requestIDs(got))
}

func TestTrimByAge(t *testing.T) {
	j := newJournal(t, Retention{MaxAge: time.Hour})
	require.NoError(t, j.Record(outcome(t, "CL1", "old", invocation.StateCompleted)))
	n, err := j.Trim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = j.Trim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := j.List(context.Background(), "CL1", "", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
