package llm

import "sync"

// ClientCache memoizes provider client handles by (first 10 chars of the
// api key, base url). Clients are long-lived; there is no automatic
// eviction, only an explicit Clear for admin operations.
type ClientCache struct {
	mu      sync.Mutex
	clients map[cacheKey]Provider
}

type cacheKey struct {
	apiKeyPrefix string
	baseURL      string
}

// NewClientCache returns an empty cache.
func NewClientCache() *ClientCache {
	return &ClientCache{clients: make(map[cacheKey]Provider)}
}

func keyPrefix(apiKey string) string {
	if len(apiKey) <= 10 {
		return apiKey
	}
	return apiKey[:10]
}

// GetOrCreate returns the cached provider for (apiKey, baseURL), creating it
// with build() on first use. Readers after the first insertion observe a
// stable handle; insertion itself is serialized by the mutex.
func (c *ClientCache) GetOrCreate(apiKey, baseURL string, build func() Provider) Provider {
	k := cacheKey{apiKeyPrefix: keyPrefix(apiKey), baseURL: baseURL}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.clients[k]; ok {
		return p
	}
	p := build()
	c.clients[k] = p
	return p
}

// Info reports cache occupancy for the /v1/cache/info endpoint.
func (c *ClientCache) Info() (count int, baseURLs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool)
	for k := range c.clients {
		if !seen[k.baseURL] {
			seen[k.baseURL] = true
			baseURLs = append(baseURLs, k.baseURL)
		}
	}
	return len(c.clients), baseURLs
}

// Clear evicts every cached client handle.
func (c *ClientCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = make(map[cacheKey]Provider)
}
