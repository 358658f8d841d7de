// Package memstore is the in-process volatile channel path, used when no Redis
// server is configured and by the in-process viewer.
package memstore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/csheth/citejump/internal/channel"
)

const DefaultSize = 256

// Store is a bounded, expiring map of entries.
type Store struct {
	cache *expirable.LRU[string, channel.Entry]
}

// New returns a Store holding at most size entries for ttl each.
func New(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = channel.DefaultRetention
	}
	return &Store{cache: expirable.NewLRU[string, channel.Entry](size, nil, ttl)}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Put(_ context.Context, entry channel.Entry) error {
	s.cache.Add(entry.Key, entry)
	return nil
}

// Take relies on Remove reporting presence, so only one caller wins a race.
func (s *Store) Take(_ context.Context, key string) (channel.Entry, error) {
	entry, ok := s.cache.Peek(key)
	if !ok || !s.cache.Remove(key) {
		return channel.Entry{}, channel.ErrNotFound
	}
	return entry, nil
}

func (s *Store) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	for _, key := range s.cache.Keys() {
		entry, ok := s.cache.Peek(key)
		if ok && entry.CreatedAt.Before(cutoff) && s.cache.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// Len reports how many live entries are held.
func (s *Store) Len() int {
	return s.cache.Len()
}
