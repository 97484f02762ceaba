// Package namespace persists per-client settings so a client's priority
// class survives controller restarts.
package namespace

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	pebblestore "github.com/appirio-tech/arena-farm-client/internal/storage/pebble"
)

// Meta is the stored record of one client namespace.
type Meta struct {
	Name string `json:"name"`
	// Priority is the client's lane; nil means the configured default.
	Priority    *int  `json:"priority,omitempty"`
	CreatedAtMs int64 `json:"createdAtMs"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

var nsMetaPrefix = []byte("nsmeta/")

func nsMetaKey(ns string) []byte {
	k := make([]byte, 0, len(nsMetaPrefix)+len(ns))
	k = append(k, nsMetaPrefix...)
	return append(k, ns...)
}

// Get returns the stored meta, or ok=false if the client has none.
func Get(db *pebblestore.DB, name string) (Meta, bool, error) {
	b, err := db.Get(nsMetaKey(name))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, false, fmt.Errorf("decode namespace %s: %w", name, err)
	}
	return m, true, nil
}

// EnsureNamespace creates the record if absent and returns the stored meta.
func EnsureNamespace(db *pebblestore.DB, name string) (Meta, error) {
	if name == "" {
		return Meta{}, fmt.Errorf("%w: client id is required", invocation.ErrInvalidArgument)
	}
	if m, ok, err := Get(db, name); err != nil || ok {
		return m, err
	}
	now := time.Now().UnixMilli()
	m := Meta{Name: name, CreatedAtMs: now, UpdatedAtMs: now}
	return m, put(db, m)
}

// SetPriority stores the client's lane; nil clears it.
func SetPriority(db *pebblestore.DB, name string, priority *int) (Meta, error) {
	m, err := EnsureNamespace(db, name)
	if err != nil {
		return Meta{}, err
	}
	m.Priority = priority
	m.UpdatedAtMs = time.Now().UnixMilli()
	return m, put(db, m)
}

// List returns every stored namespace ordered by name.
func List(db *pebblestore.DB) ([]Meta, error) {
	var (
		out    []Meta
		decErr error
	)
	err := db.ScanPrefix(nsMetaPrefix, func(_, v []byte) bool {
		var m Meta
		if err := json.Unmarshal(v, &m); err != nil {
			decErr = err
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

func put(db *pebblestore.DB, m Meta) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return db.Set(nsMetaKey(m.Name), b)
}
