package session

import "sync"

// Entry 缓存的外设
type Entry struct {
	Address string
	Name    string
}

// DiscoveryCache 单槽地址缓存：进程启动为空，首次发现后写入，活性探测失败时清空
type DiscoveryCache struct {
	mu    sync.RWMutex
	entry Entry
}

// Get 返回缓存条目
func (c *DiscoveryCache) Get() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry, c.entry.Address != ""
}

// Set 写入条目，覆盖旧值
func (c *DiscoveryCache) Set(e Entry) {
	c.mu.Lock()
	c.entry = e
	c.mu.Unlock()
}

// Invalidate 清空缓存
func (c *DiscoveryCache) Invalidate() {
	c.mu.Lock()
	c.entry = Entry{}
	c.mu.Unlock()
}

// InvalidateIf 仅当缓存仍为 address 时清空，返回是否清空
func (c *DiscoveryCache) InvalidateIf(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry.Address != address {
		return false
	}
	c.entry = Entry{}
	return true
}
