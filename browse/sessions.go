package browse

import (
	"time"

	goCache "github.com/patrickmn/go-cache"
)

// Sessions keeps browsing sessions in memory, keyed by session id. Sessions which were not stored again
// within the ttl expire.
type Sessions struct {
	cache *goCache.Cache
}

func NewSessions(ttl time.Duration) *Sessions {
	cleanupInterval := ttl / 2
	if cleanupInterval < time.Second {
		cleanupInterval = time.Second
	}
	return &Sessions{
		cache: goCache.New(ttl, cleanupInterval),
	}
}

func (s *Sessions) Get(id string) (*SessionState, bool) {
	if id == "" {
		return nil, false
	}
	item, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	return item.(*SessionState), true
}

// Put stores the state and restarts its expiry.
func (s *Sessions) Put(state *SessionState) {
	s.cache.SetDefault(state.ID, state)
}

func (s *Sessions) Delete(id string) {
	s.cache.Delete(id)
}

func (s *Sessions) Count() int {
	return s.cache.ItemCount()
}
