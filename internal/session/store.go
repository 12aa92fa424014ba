package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/metrics"
)

// Store keeps live sessions in memory until they expire or are deleted.
type Store struct {
	cache *cache.Cache
	// serializes Delete so concurrent deletes of one story report it once
	deleteMu sync.Mutex
}

// NewStore creates a store whose sessions expire ttl after creation.
func NewStore(ttl time.Duration) *Store {
	cleanup := ttl / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(key string, v interface{}) {
		if s, ok := v.(*Session); ok {
			s.Close()
		}
		metrics.StoryRemoved()
		log.Debug().Str("story_id", key).Msg("Story session evicted")
	})
	return &Store{cache: c}
}

// Put adds a session.
func (st *Store) Put(s *Session) {
	st.cache.SetDefault(s.ID().String(), s)
	metrics.StoryAdded()
}

// Get returns a live session.
func (st *Store) Get(id uuid.UUID) (*Session, bool) {
	v, ok := st.cache.Get(id.String())
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Delete removes a session and closes its subscribers. It reports whether the session existed.
func (st *Store) Delete(id uuid.UUID) bool {
	st.deleteMu.Lock()
	defer st.deleteMu.Unlock()
	if _, ok := st.cache.Get(id.String()); !ok {
		return false
	}
	st.cache.Delete(id.String())
	return true
}

// Len returns the number of sessions held, including expired ones not yet cleaned up.
func (st *Store) Len() int {
	return st.cache.ItemCount()
}
