// Package cache is the in-memory compatibility score cache. One Cache is
// built per process and injected into its callers.
package cache

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/metrics"
	"advisor-match-engine/internal/models"
)

const (
	DefaultTTL                  = 10 * time.Minute
	DefaultMaxEntries           = 5000
	DefaultSweepInterval        = time.Minute
	DefaultFrequentHitThreshold = 5
	evictReasonExpired          = "expired"
	evictReasonCapacity         = "capacity"
	evictReasonInvalidated      = "invalidated"
	evictReasonOptimized        = "optimized"
	evictReasonCleared          = "cleared"
)

type entry struct {
	key            Key
	result         models.ScoreResult
	createdAt      time.Time
	lastAccessedAt time.Time
	hitCount       int
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Size                    int           `json:"size"`
	HitRate                 float64       `json:"hitRate"`
	OldestEntryAge          time.Duration `json:"oldestEntryAge"`
	FrequentlyAccessedCount int           `json:"frequentlyAccessedCount"`
	Hits                    uint64        `json:"hits"`
	Misses                  uint64        `json:"misses"`
	Evictions               uint64        `json:"evictions"`
}

// Cache maps keys to score results with TTL expiry, LRU capacity pruning and
// top-hit retention. All state is guarded by mu; a lookup, its expiry check
// and the hit bookkeeping happen under one lock acquisition.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*list.Element
	lru       *list.List // front is most recently used
	hits      uint64
	misses    uint64
	evictions uint64
	lastSweep time.Time

	ttl           time.Duration
	maxEntries    int
	sweepInterval time.Duration
	frequentHits  int
	now           func() time.Time
	logger        logger.Logger

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithFrequentHitThreshold sets the hit count from which an entry is
// reported as frequently accessed.
func WithFrequentHitThreshold(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.frequentHits = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.logger = log
		}
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]*list.Element),
		lru:           list.New(),
		ttl:           DefaultTTL,
		maxEntries:    DefaultMaxEntries,
		sweepInterval: DefaultSweepInterval,
		frequentHits:  DefaultFrequentHitThreshold,
		now:           time.Now,
		logger:        logger.NewNoOpLogger(),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(map[string]interface{}{"component": "compat-cache"})
	c.lastSweep = c.now()
	return c
}

// Get returns a copy of the cached result. Expired entries are removed and
// reported as a miss.
func (c *Cache) Get(key Key) (models.ScoreResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	el, ok := c.entries[key.String()]
	if !ok {
		c.misses++
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		c.maybeSweepLocked(now)
		return models.ScoreResult{}, false
	}

	e := el.Value.(*entry)
	if c.expired(e, now) {
		c.removeLocked(el, evictReasonExpired)
		c.misses++
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		c.maybeSweepLocked(now)
		return models.ScoreResult{}, false
	}

	e.hitCount++
	e.lastAccessedAt = now
	c.lru.MoveToFront(el)
	c.hits++
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e.result.Clone(), true
}

// Put stores a copy of result, replacing any entry under the same key, and
// prunes least recently used entries beyond capacity.
func (c *Cache) Put(key Key, result models.ScoreResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	k := key.String()
	if el, ok := c.entries[k]; ok {
		e := el.Value.(*entry)
		e.result = result.Clone()
		e.createdAt = now
		e.lastAccessedAt = now
		e.hitCount = 0
		c.lru.MoveToFront(el)
		return
	}

	c.entries[k] = c.lru.PushFront(&entry{
		key:            key,
		result:         result.Clone(),
		createdAt:      now,
		lastAccessedAt: now,
	})

	for len(c.entries) > c.maxEntries {
		c.removeLocked(c.lru.Back(), evictReasonCapacity)
	}
	metrics.CacheSize.Set(float64(len(c.entries)))
}

// Invalidate removes one key and reports whether it was present.
func (c *Cache) Invalidate(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key.String()]
	if !ok {
		return false
	}
	c.removeLocked(el, evictReasonInvalidated)
	return true
}

// InvalidateByEntityID removes every entry whose key references id as either
// provider or seeker. Removal is complete when it returns.
func (c *Cache) InvalidateByEntityID(id string) int {
	if id == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).key.References(id) {
			c.removeLocked(el, evictReasonInvalidated)
			removed++
		}
		el = next
	}
	if removed > 0 {
		c.logger.Debug("invalidated entries", map[string]interface{}{"entityId": id, "removed": removed})
	}
	return removed
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.evictions += uint64(n)
	metrics.CacheEvictions.WithLabelValues(evictReasonCleared).Add(float64(n))
	metrics.CacheSize.Set(0)
}

// Optimize shrinks the cache to at most target entries, keeping those with
// the highest hit counts. Ties keep the most recently accessed. It returns
// the number of entries removed.
func (c *Cache) Optimize(target int) int {
	if target < 0 {
		target = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) <= target {
		return 0
	}

	ranked := make([]*list.Element, 0, len(c.entries))
	for el := c.lru.Front(); el != nil; el = el.Next() {
		ranked = append(ranked, el)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Value.(*entry), ranked[j].Value.(*entry)
		if a.hitCount != b.hitCount {
			return a.hitCount > b.hitCount
		}
		return a.lastAccessedAt.After(b.lastAccessedAt)
	})

	removed := 0
	for _, el := range ranked[target:] {
		c.removeLocked(el, evictReasonOptimized)
		removed++
	}
	c.logger.Info("cache optimized", map[string]interface{}{"target": target, "removed": removed})
	return removed
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	for el := c.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if age := now.Sub(e.createdAt); age > s.OldestEntryAge {
			s.OldestEntryAge = age
		}
		if e.hitCount >= c.frequentHits {
			s.FrequentlyAccessedCount++
		}
	}
	return s
}

// Start runs the periodic TTL sweep until ctx is done or Close is called.
func (c *Cache) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.sweepLoop(ctx)
	})
}

func (c *Cache) sweepLoop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("swept expired entries", map[string]interface{}{"removed": n})
			}
		}
	}
}

// Close stops the background sweeper. Cached entries stay readable.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	started := true
	c.startOnce.Do(func() { started = false })
	if started {
		<-c.done
	}
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.createdAt) >= c.ttl
}

func (c *Cache) maybeSweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < c.sweepInterval {
		return
	}
	c.sweepLocked(now)
}

func (c *Cache) sweepLocked(now time.Time) int {
	c.lastSweep = now
	removed := 0
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		if c.expired(el.Value.(*entry), now) {
			c.removeLocked(el, evictReasonExpired)
			removed++
		}
		el = next
	}
	return removed
}

func (c *Cache) removeLocked(el *list.Element, reason string) {
	e := c.lru.Remove(el).(*entry)
	delete(c.entries, e.key.String())
	c.evictions++
	metrics.CacheEvictions.WithLabelValues(reason).Inc()
	metrics.CacheSize.Set(float64(len(c.entries)))
}
