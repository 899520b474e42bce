package service

import (
	"sync"
	"time"

	"pinbar_scanner/internal/models"
)

const defaultCacheDepth = 200

type cacheEntry struct {
	candles   []models.Candle
	updatedAt time.Time
}

// Cache — последние свечи по символу из push-потока. Один писатель (dispatch-цикл),
// сколько угодно читателей.
type Cache struct {
	mu      sync.RWMutex
	depth   int
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache(depth int) *Cache {
	if depth <= 0 {
		depth = defaultCacheDepth
	}
	return &Cache{
		depth:   depth,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Replace перезаписывает запись целиком (без слияния) и обрезает до depth самых свежих.
func (c *Cache) Replace(symbol string, candles []models.Candle) {
	if len(candles) == 0 {
		return
	}
	tail := models.Last(candles, c.depth)
	cp := make([]models.Candle, len(tail))
	copy(cp, tail)

	c.mu.Lock()
	c.entries[symbol] = cacheEntry{candles: cp, updatedAt: c.now()}
	c.mu.Unlock()
}

// Seed кладёт данные из REST, только если push ещё ничего не принёс.
func (c *Cache) Seed(symbol string, candles []models.Candle) bool {
	if len(candles) == 0 {
		return false
	}
	c.mu.RLock()
	_, exists := c.entries[symbol]
	c.mu.RUnlock()
	if exists {
		return false
	}

	tail := models.Last(candles, c.depth)
	cp := make([]models.Candle, len(tail))
	copy(cp, tail)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[symbol]; exists {
		return false
	}
	c.entries[symbol] = cacheEntry{candles: cp, updatedAt: c.now()}
	return true
}

// Last — копия последних n свечей; ok=false, если в кэше меньше n.
func (c *Cache) Last(symbol string, n int) ([]models.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.entries[symbol]
	if !found || n <= 0 || len(e.candles) < n {
		return nil, false
	}
	tail := e.candles[len(e.candles)-n:]
	out := make([]models.Candle, n)
	copy(out, tail)
	return out, true
}

// UpdatedAt — время последней записи по символу.
func (c *Cache) UpdatedAt(symbol string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[symbol]
	return e.updatedAt, ok
}

// Invalidate сбрасывает все записи: после реконнекта читатели идут в REST.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Depth() int { return c.depth }
