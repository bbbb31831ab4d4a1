package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
	"github.com/opsai-platform/analytics-backend-go/internal/core/sources"
	"github.com/opsai-platform/analytics-backend-go/internal/database/models"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
)

type fakeDashboardRepo struct {
	rows map[string]*models.Dashboard
}

func (r *fakeDashboardRepo) Create(_ context.Context, _ *models.Dashboard) error { return nil }

func (r *fakeDashboardRepo) GetByID(_ context.Context, id string) (*models.Dashboard, error) {
	if row, ok := r.rows[id]; ok {
		return row, nil
	}
	return nil, apperrors.ErrDashboardNotFound
}

func (r *fakeDashboardRepo) ListByTenant(_ context.Context, _ string) ([]*models.Dashboard, error) {
	return nil, nil
}

func (r *fakeDashboardRepo) ListAll(_ context.Context) ([]*models.Dashboard, error) {
	return nil, nil
}

func (r *fakeDashboardRepo) Update(_ context.Context, _ *models.Dashboard) error { return nil }
func (r *fakeDashboardRepo) Delete(_ context.Context, _ string) error            { return nil }

// countingAdapter counts fetches and can be told to fail or stall.
type countingAdapter struct {
	sourceType string
	fetches    atomic.Int64
	fail       bool
	delay      time.Duration
	records    []pipeline.Record
}

func (a *countingAdapter) Type() string { return a.sourceType }

func (a *countingAdapter) Fetch(ctx context.Context, _ json.RawMessage, _ map[string]interface{}) ([]pipeline.Record, error) {
	a.fetches.Add(1)
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.fail {
		return nil, fmt.Errorf("backend unavailable")
	}
	return a.records, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestService(t *testing.T, ttl time.Duration, config string, adapters ...sources.Adapter) (*Service, *CacheService) {
	t.Helper()

	registry := sources.NewRegistry(quietLogger())
	for _, a := range adapters {
		registry.Register(a)
	}

	cache := NewCacheService(ttl, time.Hour, nil, quietLogger())
	t.Cleanup(cache.Stop)

	repo := &fakeDashboardRepo{rows: map[string]*models.Dashboard{
		"d1": {ID: "d1", TenantID: "t1", Name: "Revenue", Config: json.RawMessage(config)},
	}}

	return NewService(repo, registry, cache, quietLogger()), cache
}

func TestGetDashboardData_CacheFreshness(t *testing.T) {
	adapter := &countingAdapter{
		sourceType: "database",
		records:    []pipeline.Record{{"amount": 10.0}},
	}
	svc, _ := newTestService(t, 100*time.Millisecond, `{
		"refreshInterval": 0,
		"dataSources": [{"id": "s1", "type": "database", "config": {}}]
	}`, adapter)

	first, err := svc.GetDashboardData(context.Background(), "d1", "t1", nil)
	require.NoError(t, err)

	second, err := svc.GetDashboardData(context.Background(), "d1", "t1", nil)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), adapter.fetches.Load())

	time.Sleep(120 * time.Millisecond)

	_, err = svc.GetDashboardData(context.Background(), "d1", "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), adapter.fetches.Load())
}

func TestGetDashboardData_SourceIsolation(t *testing.T) {
	healthy := &countingAdapter{
		sourceType: "database",
		records:    []pipeline.Record{{"amount": 10.0}},
	}
	broken := &countingAdapter{sourceType: "api", fail: true}
	svc, _ := newTestService(t, time.Minute, `{
		"dataSources": [
			{"id": "s1", "type": "database", "config": {}},
			{"id": "s2", "type": "api", "config": {}},
			{"id": "s3", "type": "database", "config": {}}
		]
	}`, healthy, broken)

	data, err := svc.GetDashboardData(context.Background(), "d1", "t1", nil)
	require.NoError(t, err)

	require.Len(t, data.Sources, 3)
	assert.Empty(t, data.Sources["s1"].Error)
	assert.NotEmpty(t, data.Sources["s1"].Data)
	assert.Equal(t, "Failed to fetch data", data.Sources["s2"].Error)
	assert.Empty(t, data.Sources["s3"].Error)
}

func TestGetDashboardData_ChartsAndSummary(t *testing.T) {
	adapter := &countingAdapter{
		sourceType: "database",
		records: []pipeline.Record{
			{"month": "Jan", "revenue": 100.0},
			{"month": "Feb", "revenue": 200.0},
		},
	}
	svc, _ := newTestService(t, time.Minute, `{
		"dataSources": [{"id": "s1", "type": "database", "config": {}}],
		"charts": [{
			"id": "c1",
			"type": "line",
			"dataSource": "s1",
			"options": {"labelField": "month", "series": ["revenue"]}
		}]
	}`, adapter)

	data, err := svc.GetDashboardData(context.Background(), "d1", "t1", nil)
	require.NoError(t, err)

	require.Contains(t, data.Charts, "c1")
	assert.Equal(t, []interface{}{"Jan", "Feb"}, data.Charts["c1"]["labels"])

	summary := data.Sources["s1"].Summary
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, "revenue", summary.Field)
	assert.Equal(t, 300.0, summary.Total)
	assert.Equal(t, 150.0, summary.Average)
}

func TestGetDashboardData_AppliesTransformations(t *testing.T) {
	adapter := &countingAdapter{
		sourceType: "database",
		records: []pipeline.Record{
			{"status": "open", "amount": 10.0},
			{"status": "closed", "amount": 20.0},
		},
	}
	svc, _ := newTestService(t, time.Minute, `{
		"dataSources": [{
			"id": "s1",
			"type": "database",
			"config": {},
			"transformations": [
				{"type": "filter", "config": {"conditions": {"status": {"operator": "equals", "value": "open"}}}}
			]
		}]
	}`, adapter)

	data, err := svc.GetDashboardData(context.Background(), "d1", "t1", nil)
	require.NoError(t, err)
	require.Len(t, data.Sources["s1"].Data, 1)
	assert.Equal(t, "open", data.Sources["s1"].Data[0]["status"])
}

func TestGetDashboardData_ChartOverUnknownSourceFailsValidation(t *testing.T) {
	adapter := &countingAdapter{sourceType: "database"}
	svc, _ := newTestService(t, time.Minute, `{
		"dataSources": [{"id": "s1", "type": "database", "config": {}}],
		"charts": [{"id": "c1", "type": "line", "dataSource": "missing"}]
	}`, adapter)

	_, err := svc.GetDashboardData(context.Background(), "d1", "t1", nil)
	require.Error(t, err)
	assert.Equal(t, int64(0), adapter.fetches.Load())
}

func TestGetDashboardData_UnknownDashboard(t *testing.T) {
	svc, _ := newTestService(t, time.Minute, `{}`)

	_, err := svc.GetDashboardData(context.Background(), "nope", "t1", nil)
	assert.ErrorIs(t, err, apperrors.ErrDashboardNotFound)
}

func TestGetDashboardData_WrongTenant(t *testing.T) {
	svc, _ := newTestService(t, time.Minute, `{"dataSources":[]}`)

	_, err := svc.GetDashboardData(context.Background(), "d1", "other-tenant", nil)
	assert.ErrorIs(t, err, apperrors.ErrDashboardNotFound)
}

func TestGetDashboardData_SingleFlight(t *testing.T) {
	adapter := &countingAdapter{
		sourceType: "database",
		delay:      50 * time.Millisecond,
		records:    []pipeline.Record{{"amount": 1.0}},
	}
	svc, _ := newTestService(t, time.Minute, `{
		"dataSources": [{"id": "s1", "type": "database", "config": {}}]
	}`, adapter)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetDashboardData(context.Background(), "d1", "t1", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), adapter.fetches.Load())
}

func TestGetDashboardData_CancelledCallerDoesNotFailFlight(t *testing.T) {
	adapter := &countingAdapter{
		sourceType: "database",
		delay:      80 * time.Millisecond,
		records:    []pipeline.Record{{"amount": 1.0}},
	}
	svc, _ := newTestService(t, time.Minute, `{
		"dataSources": [{"id": "s1", "type": "database", "config": {}}]
	}`, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = svc.GetDashboardData(ctx, "d1", "t1", nil)
	}()

	// Let the first caller start the computation, join it, then cancel the
	// first caller mid-flight.
	time.Sleep(20 * time.Millisecond)
	var joined *Data
	var joinedErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		joined, joinedErr = svc.GetDashboardData(context.Background(), "d1", "t1", nil)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	require.NoError(t, joinedErr)
	// A cancellation-poisoned flight would surface as a source error marker.
	assert.Empty(t, joined.Sources["s1"].Error)
	assert.NotEmpty(t, joined.Sources["s1"].Data)
	assert.Equal(t, int64(1), adapter.fetches.Load())
}

func TestCacheKey_CanonicalFilterOrder(t *testing.T) {
	a := CacheKey("d1", "t1", map[string]interface{}{"region": "eu", "status": "open"})
	b := CacheKey("d1", "t1", map[string]interface{}{"status": "open", "region": "eu"})
	assert.Equal(t, a, b)

	c := CacheKey("d1", "t1", map[string]interface{}{"region": "us", "status": "open"})
	assert.NotEqual(t, a, c)
}

func TestCacheService_InvalidatePrefix(t *testing.T) {
	cache := NewCacheService(time.Minute, time.Hour, nil, quietLogger())
	defer cache.Stop()

	cache.Set("d1:t1:{}", 1, 0)
	cache.Set(`d1:t1:{"a":1}`, 2, 0)
	cache.Set("d2:t1:{}", 3, 0)

	removed := cache.InvalidatePrefix(InvalidationPrefix("d1", "t1"))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Get("d2:t1:{}")
	assert.True(t, ok)
}

func TestCacheService_LazyExpiry(t *testing.T) {
	cache := NewCacheService(time.Minute, time.Hour, nil, quietLogger())
	defer cache.Stop()

	cache.Set("k", "v", 30*time.Millisecond)

	_, ok := cache.Get("k")
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	_, ok = cache.Get("k")
	assert.False(t, ok)
	// The stale entry is still held until the sweep runs.
	assert.Equal(t, 1, cache.Len())
}
