// Package cache keeps a redis-backed mirror of the attendance list under a
// single key. It is the offline-friendly read fallback when the backend is
// unreachable and the export source for downloads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"absengo/internal/attendance"
)

// DefaultKey is the single cache entry holding the serialized record list.
const DefaultKey = "absengo:attendance"

// Mirror is the teacher-facing local view of attendance state. It applies
// the same (studentID, date) dedup rule as the recorder: a conflicting write
// is silently dropped, never merged.
type Mirror struct {
	client *redis.Client
	key    string
}

// NewMirror creates a mirror over a redis client.
func NewMirror(client *redis.Client, key string) *Mirror {
	if key == "" {
		key = DefaultKey
	}
	return &Mirror{client: client, key: key}
}

// Load returns the cached record list, or nil when the cache is cold.
func (m *Mirror) Load(ctx context.Context) ([]attendance.Record, error) {
	raw, err := m.client.Get(ctx, m.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache load: %w", err)
	}
	var recs []attendance.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return recs, nil
}

// Replace overwrites the mirror with a freshly fetched list. Refreshes are
// idempotent against current state, so a superseded replace is harmless.
func (m *Mirror) Replace(ctx context.Context, recs []attendance.Record) error {
	raw, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	return m.client.Set(ctx, m.key, raw, 0).Err()
}

// Append adds one record, honoring the dedup key. Reports whether the record
// was written; a conflict is not an error.
func (m *Mirror) Append(ctx context.Context, rec attendance.Record) (bool, error) {
	recs, err := m.Load(ctx)
	if err != nil {
		return false, err
	}
	merged, added := merge(recs, rec)
	if !added {
		return false, nil
	}
	return true, m.Replace(ctx, merged)
}

// Clear drops the cache entry.
func (m *Mirror) Clear(ctx context.Context) error {
	return m.client.Del(ctx, m.key).Err()
}

// merge appends rec unless its dedup key is already present.
func merge(recs []attendance.Record, rec attendance.Record) ([]attendance.Record, bool) {
	for _, existing := range recs {
		if existing.Key() == rec.Key() {
			return recs, false
		}
	}
	return append(recs, rec), true
}
