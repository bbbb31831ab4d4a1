package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// CacheInvalidator drops cached entries under a key prefix.
type CacheInvalidator interface {
	InvalidatePrefix(prefix string) int
}

// Callback receives the raw payload of each matching event. It runs after
// cache invalidation; it is never asked to recompute the dashboard.
type Callback func(payload []byte)

// Bridge subscribes to change-notification channels on behalf of dashboards
// and turns each event into a cache invalidation plus a callback delivery.
type Bridge struct {
	bus    Bus
	cache  CacheInvalidator
	logger *logrus.Logger

	mu   sync.Mutex
	subs []Subscription
}

// NewBridge creates a subscription bridge.
func NewBridge(bus Bus, cache CacheInvalidator, logger *logrus.Logger) *Bridge {
	return &Bridge{bus: bus, cache: cache, logger: logger}
}

// WatchDashboard subscribes to channel for one dashboard. On each event all
// cache entries under `dashboardID:tenantID:` are invalidated, then callback
// runs with the raw payload. callback may be nil.
func (b *Bridge) WatchDashboard(ctx context.Context, channel, dashboardID, tenantID string, callback Callback) error {
	prefix := dashboardID + ":" + tenantID + ":"

	sub, err := b.bus.Subscribe(ctx, channel, func(_ string, payload []byte) {
		removed := b.cache.InvalidatePrefix(prefix)
		b.logger.WithFields(logrus.Fields{
			"channel":      channel,
			"dashboard_id": dashboardID,
			"removed":      removed,
		}).Debug("Dashboard cache invalidated by event")
		if callback != nil {
			callback(payload)
		}
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Close unsubscribes every channel. There is no partial-unsubscribe
// granularity.
func (b *Bridge) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
