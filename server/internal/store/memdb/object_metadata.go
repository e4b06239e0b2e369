package memdb

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hedisam/filedrop/server/internal/store"
)

// MetadataStore keeps upload records in a map guarded by a mutex. It mirrors the semantics of the Postgres store,
// including the uniqueness constraint on key, and is meant for single-node runs and tests.
type MetadataStore struct {
	mu      sync.RWMutex
	clock   clock.Clock
	uploads map[string]*store.Upload
}

func NewMetadataStore(clk clock.Clock) *MetadataStore {
	return &MetadataStore{
		clock:   clk,
		uploads: make(map[string]*store.Upload),
	}
}

// Insert stores a new upload record and sets its creation time. It returns store.ErrConflict if the key is taken.
func (s *MetadataStore) Insert(_ context.Context, u *store.Upload) (*store.Upload, error) {
	if u.Key == "" {
		return nil, errors.New("key is required for storing metadata")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[u.Key]; ok {
		return nil, store.ErrConflict
	}

	created := s.clock.Now().UTC()
	if !u.Expires.After(created) {
		return nil, errors.New("expiry must be after creation time")
	}

	record := &store.Upload{
		Key:      u.Key,
		Filename: u.Filename,
		Expires:  u.Expires,
		Created:  created,
	}
	s.uploads[u.Key] = record

	cp := *record
	return &cp, nil
}

func (s *MetadataStore) Get(_ context.Context, key string) (*store.Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.uploads[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ListExpired returns up to limit records whose expiry is before the given time, oldest first. A non-nil after
// skips every record up to and including that position.
func (s *MetadataStore) ListExpired(_ context.Context, before time.Time, after *store.Cursor, limit int) ([]*store.Upload, error) {
	s.mu.RLock()
	var expired []*store.Upload
	for _, u := range s.uploads {
		if u.Expires.Before(before) && (after == nil || compareCursor(store.CursorOf(u), after) > 0) {
			cp := *u
			expired = append(expired, &cp)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(expired, func(a, b *store.Upload) int {
		return compareCursor(store.CursorOf(a), store.CursorOf(b))
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// Delete removes the record for key. Deleting a missing record is not an error.
func (s *MetadataStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.uploads, key)
	return nil
}

func compareCursor(a, b *store.Cursor) int {
	return cmp.Or(a.Expires.Compare(b.Expires), cmp.Compare(a.Key, b.Key))
}
