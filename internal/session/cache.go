package session

import "sync"

// HostCache remembers addresses resolved during this process so interactive
// menus do not re-probe the network on every link or QR render. Keys are
// resolution sources ("auto" or an explicit host).
type HostCache struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewHostCache() *HostCache {
	return &HostCache{m: map[string]string{}}
}

func (c *HostCache) Get(source string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[source]
	return v, ok
}

func (c *HostCache) Set(source, host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[source] = host
}

func (c *HostCache) Forget(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, source)
}

func (c *HostCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = map[string]string{}
}
