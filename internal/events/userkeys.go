package events

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// userKeysCache remembers recently seen user keys so that index events are
// emitted at most once per user per LRU window.
type userKeysCache struct {
	cache *lru.Cache[string, struct{}]
}

func newUserKeysCache(capacity int) (*userKeysCache, error) {
	c, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &userKeysCache{cache: c}, nil
}

// notice records the key and reports whether it was already present. A hit
// refreshes the key's recency.
func (u *userKeysCache) notice(key string) bool {
	if _, ok := u.cache.Get(key); ok {
		return true
	}
	u.cache.Add(key, struct{}{})
	return false
}

// clear forgets all keys.
func (u *userKeysCache) clear() {
	u.cache.Purge()
}
