package dashboard

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type cacheEntry struct {
	data      interface{}
	timestamp time.Time
	ttl       time.Duration
}

func (e cacheEntry) fresh(now time.Time) bool {
	return now.Sub(e.timestamp) < e.ttl
}

// CacheService memoizes computed dashboard results with lazy TTL expiry.
// Stale entries are recomputed on next access; the background sweep only
// reclaims memory.
type CacheService struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	defaultTTL time.Duration
	logger     *logrus.Logger

	stop chan struct{}
	once sync.Once

	hits          prometheus.Counter
	misses        prometheus.Counter
	invalidations prometheus.Counter
}

// NewCacheService creates a cache with the given default TTL and starts the
// cleanup sweep. reg may be nil to skip metric registration.
func NewCacheService(defaultTTL, cleanupInterval time.Duration, reg prometheus.Registerer, logger *logrus.Logger) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	c := &CacheService{
		entries:    make(map[string]cacheEntry),
		defaultTTL: defaultTTL,
		logger:     logger,
		stop:       make(chan struct{}),
	}

	if reg != nil {
		factory := promauto.With(reg)
		c.hits = factory.NewCounter(prometheus.CounterOpts{
			Name: "analytics_dashboard_cache_hits_total",
			Help: "Dashboard cache lookups served from a fresh entry.",
		})
		c.misses = factory.NewCounter(prometheus.CounterOpts{
			Name: "analytics_dashboard_cache_misses_total",
			Help: "Dashboard cache lookups that required recomputation.",
		})
		c.invalidations = factory.NewCounter(prometheus.CounterOpts{
			Name: "analytics_dashboard_cache_invalidations_total",
			Help: "Dashboard cache entries removed by explicit invalidation.",
		})
	}

	go c.cleanupLoop(cleanupInterval)
	return c
}

// Get returns the cached value when the entry is still fresh.
func (c *CacheService) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && entry.fresh(time.Now()) {
		c.count(c.hits)
		return entry.data, true
	}
	c.count(c.misses)
	return nil, false
}

// Set stores a value. ttl <= 0 falls back to the default TTL.
func (c *CacheService) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{data: value, timestamp: time.Now(), ttl: ttl}
	c.mu.Unlock()
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns the number removed.
func (c *CacheService) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		if c.invalidations != nil {
			c.invalidations.Add(float64(removed))
		}
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{
				"prefix":  prefix,
				"removed": removed,
			}).Debug("Invalidated dashboard cache entries")
		}
	}
	return removed
}

// Len reports the number of stored entries, fresh or stale.
func (c *CacheService) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the cleanup sweep. Safe to call more than once.
func (c *CacheService) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *CacheService) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, entry := range c.entries {
				if !entry.fresh(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *CacheService) count(counter prometheus.Counter) {
	if counter != nil {
		counter.Inc()
	}
}
