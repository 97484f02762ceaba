// Package journal keeps the terminal outcome of every completed or
// cancelled invocation in Pebble so finished work can be looked up by the
// same client and id prefix used for pending requests.
//
// Layout:
//
//	jr/{composite key}{record id}  -> JSON Entry
//	jt/{record id bytes}           -> jr key (age index)
//
// Record ids are UUIDv7, so the age index is ordered by write time.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/pending"
	pebblestore "github.com/appirio-tech/arena-farm-client/internal/storage/pebble"
)

var (
	prefixRecord = []byte("jr/")
	prefixAge    = []byte("jt/")
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Entry is one journal record.
type Entry struct {
	ID string `json:"id"`
	invocation.Outcome
}

// Retention bounds the journal. Zero fields disable that bound.
type Retention struct {
	MaxAge     time.Duration
	MaxEntries int
}

// Journal appends and lists outcomes.
type Journal struct {
	db        *pebblestore.DB
	retention Retention
	now       func() time.Time
}

// New returns a journal over db.
func New(db *pebblestore.DB, retention Retention) *Journal {
	return &Journal{db: db, retention: retention, now: time.Now}
}

func recordKey(compositeKey string, id uuid.UUID) []byte {
	k := make([]byte, 0, len(prefixRecord)+len(compositeKey)+36)
	k = append(k, prefixRecord...)
	k = append(k, compositeKey...)
	return append(k, id.String()...)
}

func ageKey(id uuid.UUID) []byte {
	k := make([]byte, 0, len(prefixAge)+16)
	k = append(k, prefixAge...)
	return append(k, id[:]...)
}

// Record appends o. Attachments or values that cannot be encoded as JSON
// are stored in their fmt %v form.
func (j *Journal) Record(o invocation.Outcome) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	value, err := json.Marshal(Entry{ID: id.String(), Outcome: o})
	if err != nil {
		o.Attachment = stringify(o.Attachment)
		o.Value = stringify(o.Value)
		if value, err = json.Marshal(Entry{ID: id.String(), Outcome: o}); err != nil {
			return fmt.Errorf("encode outcome: %w", err)
		}
	}

	rk := recordKey(o.Key, id)
	b := j.db.NewBatch()
	defer b.Close()
	if err := b.Set(rk, value, nil); err != nil {
		return err
	}
	if err := b.Set(ageKey(id), rk, nil); err != nil {
		return err
	}
	return j.db.CommitBatch(context.Background(), b)
}

func stringify(v any) any {
	if v == nil {
		return nil
	}
	return fmt.Sprintf("%v", v)
}

// List returns up to limit entries for client whose request id starts with
// idPrefix, ordered by request id and then by write time.
func (j *Journal) List(ctx context.Context, client, idPrefix string, limit int) ([]Entry, error) {
	if client == "" {
		return nil, fmt.Errorf("%w: client id is required", invocation.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	prefix := append(append([]byte{}, prefixRecord...), pending.QueryPrefix(client, idPrefix)...)
	out := make([]Entry, 0, 16)
	var decodeErr error
	err := j.db.ScanPrefix(prefix, func(_, v []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			decodeErr = err
			return true
		}
		out = append(out, e)
		return len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 && decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// Trim enforces the retention bounds and returns how many entries it
// removed.
func (j *Journal) Trim(ctx context.Context) (int, error) {
	if j.retention.MaxAge <= 0 && j.retention.MaxEntries <= 0 {
		return 0, nil
	}
	type ref struct{ age, record []byte }
	var all []ref
	err := j.db.ScanPrefix(prefixAge, func(k, v []byte) bool {
		all = append(all, ref{age: append([]byte{}, k...), record: append([]byte{}, v...)})
		return true
	})
	if err != nil {
		return 0, err
	}

	drop := 0
	if j.retention.MaxEntries > 0 && len(all) > j.retention.MaxEntries {
		drop = len(all) - j.retention.MaxEntries
	}
	if j.retention.MaxAge > 0 {
		cutoff := j.now().Add(-j.retention.MaxAge)
		for drop < len(all) {
			id, err := uuid.FromBytes(all[drop].age[len(prefixAge):])
			if err != nil || !writtenAt(id).Before(cutoff) {
				break
			}
			drop++
		}
	}
	if drop == 0 {
		return 0, nil
	}

	b := j.db.NewBatch()
	defer b.Close()
	for _, r := range all[:drop] {
		if err := b.Delete(r.record, nil); err != nil {
			return 0, err
		}
		if err := b.Delete(r.age, nil); err != nil {
			return 0, err
		}
	}
	if err := j.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	return drop, nil
}

func writtenAt(id uuid.UUID) time.Time {
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec)
}

// RunRetention trims every interval until ctx is done.
func (j *Journal) RunRetention(ctx context.Context, interval time.Duration, onErr func(error)) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := j.Trim(ctx); err != nil && !errors.Is(err, context.Canceled) && onErr != nil {
				onErr(err)
			}
		}
	}
}
