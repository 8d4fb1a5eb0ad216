package services

import (
	"sync"
	"time"

	"github.com/GrainArc/HydroMesh/Tin"
)

// cacheItem 缓存项
type cacheItem struct {
	mesh      *Tin.MeshBuffers
	expiresAt time.Time
}

// MeshCache 构网结果缓存，按条数和过期时间淘汰
// 缓存的 MeshBuffers 被多个请求共享，调用方不得修改。
type MeshCache struct {
	mu      sync.RWMutex
	items   map[string]*cacheItem
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMeshCache 创建缓存并启动过期清理协程，用完需要 Close
func NewMeshCache(maxSize int, ttl time.Duration) *MeshCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	cache := &MeshCache{
		items:   make(map[string]*cacheItem),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go cache.cleanupLoop(time.Minute)
	return cache
}

// Get 获取缓存，过期的项视为不存在
func (c *MeshCache) Get(key string) (*Tin.MeshBuffers, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || c.now().After(item.expiresAt) {
		return nil, false
	}
	return item.mesh, true
}

// Set 写入缓存，满了先删掉最早过期的一项
func (c *MeshCache) Set(key string, mesh *Tin.MeshBuffers) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = &cacheItem{
		mesh:      mesh,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *MeshCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, item := range c.items {
		if oldestKey == "" || item.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *MeshCache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *MeshCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

// Clear 清空缓存
func (c *MeshCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
}

func (c *MeshCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close 停止清理协程，可重复调用
func (c *MeshCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}
