package vectorstore

import (
	"net/http"
	"strings"
	"sync"
)

type storeKey struct {
	url        string
	collection string
	vectorSize int
}

// StoreCache memoizes Store handles by (normalized url, collection, vector
// size), avoiding redundant client construction for repeated calls against
// the same collection.
type StoreCache struct {
	mu     sync.Mutex
	stores map[storeKey]*Store
}

func NewStoreCache() *StoreCache {
	return &StoreCache{stores: make(map[storeKey]*Store)}
}

func normalizeURL(u string) string {
	return strings.TrimSuffix(strings.TrimSpace(u), "/")
}

// GetOrCreate returns a cached Store for the given key, building one with
// apiKey/httpClient on first use.
func (c *StoreCache) GetOrCreate(baseURL, collection string, vectorSize int, apiKey string, httpClient *http.Client) *Store {
	k := storeKey{url: normalizeURL(baseURL), collection: collection, vectorSize: vectorSize}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stores[k]; ok {
		return s
	}
	s := New(baseURL, apiKey, httpClient)
	c.stores[k] = s
	return s
}
