// Package resolver implements the app-name resolver, element-name resolver,
// and click disambiguation (spec §4.4), each backed by an in-memory cache
// plus the persistent decision cache for Test/Run mode replay.
package resolver

import "sync"

// AppResolution is the cached result of resolving a user-facing app string.
type AppResolution struct {
	Name string
	PID  int
}

// AppCache maps a user input string to its resolved (name, pid). It lives
// only for the duration of a single run() (spec §3).
type AppCache struct {
	mu   sync.RWMutex
	data map[string]AppResolution
}

// NewAppCache creates an empty app cache.
func NewAppCache() *AppCache {
	return &AppCache{data: make(map[string]AppResolution)}
}

// Get looks up a prior resolution by the exact user input string.
func (c *AppCache) Get(input string) (AppResolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[input]
	return v, ok
}

// Put records a resolution for a user input string.
func (c *AppCache) Put(input string, v AppResolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[input] = v
}

// Evict removes a cached resolution, forcing re-resolution via the LLM on
// the next lookup (spec §4.4 eviction rules).
func (c *AppCache) Evict(input string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, input)
}

// elementCacheKey joins (target, app_name) the same way the decision cache
// does, minus node_id — the in-memory cache is not scoped to a node.
func elementCacheKey(target, appName string) string {
	return target + "\x00" + appName
}

// ElementCache maps (target, app_name) to a resolved accessibility name.
// Lives only for the duration of a single run().
type ElementCache struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewElementCache creates an empty element cache.
func NewElementCache() *ElementCache {
	return &ElementCache{data: make(map[string]string)}
}

// Get looks up a cached resolved name.
func (c *ElementCache) Get(target, appName string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[elementCacheKey(target, appName)]
	return v, ok
}

// Put records a resolved name.
func (c *ElementCache) Put(target, appName, resolvedName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[elementCacheKey(target, appName)] = resolvedName
}

// Evict removes a cached resolved name (target, app_name) pair.
func (c *ElementCache) Evict(target, appName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, elementCacheKey(target, appName))
}
