package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
	"github.com/opsai-platform/analytics-backend-go/internal/core/sources"
	"github.com/opsai-platform/analytics-backend-go/internal/core/visualization"
	"github.com/opsai-platform/analytics-backend-go/internal/database/repositories"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
)

// sourceErrorMessage fills a failed source's slot. The rest of the dashboard
// still renders.
const sourceErrorMessage = "Failed to fetch data"

// SourceResult is one source's slot in a dashboard response.
type SourceResult struct {
	Data    []pipeline.Record `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Summary *Summary          `json:"summary,omitempty"`
}

// Summary is a best-effort numeric rollup of one source's records.
type Summary struct {
	Count   int     `json:"count"`
	Field   string  `json:"field,omitempty"`
	Total   float64 `json:"total,omitempty"`
	Average float64 `json:"average,omitempty"`
}

// Data is the composite dashboard payload handed to callers and cached.
type Data struct {
	DashboardID string                            `json:"dashboardId"`
	TenantID    string                            `json:"tenantId"`
	GeneratedAt time.Time                         `json:"generatedAt"`
	Sources     map[string]*SourceResult          `json:"sources"`
	Charts      map[string]map[string]interface{} `json:"charts"`
}

// Service assembles dashboard data: cache lookup, per-source fetch with
// failure isolation, transformations, chart generation, summary rollup.
type Service struct {
	dashboards repositories.DashboardRepository
	registry   *sources.Registry
	cache      *CacheService
	logger     *logrus.Logger
	flight     singleflight.Group
}

// NewService creates a dashboard data service.
func NewService(dashboards repositories.DashboardRepository, registry *sources.Registry, cache *CacheService, logger *logrus.Logger) *Service {
	return &Service{
		dashboards: dashboards,
		registry:   registry,
		cache:      cache,
		logger:     logger,
	}
}

// CacheKey builds the deterministic composite key for one dashboard request.
// Filter keys are sorted so logically identical filter sets share one entry.
func CacheKey(dashboardID, tenantID string, filters map[string]interface{}) string {
	return fmt.Sprintf("%s:%s:%s", dashboardID, tenantID, canonicalFilters(filters))
}

// InvalidationPrefix matches every cached filter variant of one dashboard.
func InvalidationPrefix(dashboardID, tenantID string) string {
	return fmt.Sprintf("%s:%s:", dashboardID, tenantID)
}

func canonicalFilters(filters map[string]interface{}) string {
	if len(filters) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(filters[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// GetDashboardData returns the composite payload for one dashboard, serving
// fresh cache entries without any source fetch. Concurrent misses on the
// same key share a single computation.
func (s *Service) GetDashboardData(ctx context.Context, dashboardID, tenantID string, filters map[string]interface{}) (*Data, error) {
	key := CacheKey(dashboardID, tenantID, filters)

	if cached, ok := s.cache.Get(key); ok {
		if data, ok := cached.(*Data); ok {
			return data, nil
		}
	}

	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		// The computation is shared by every coalesced waiter, so it must
		// not die with the first caller's context.
		return s.compute(context.WithoutCancel(ctx), dashboardID, tenantID, filters, key)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Data), nil
}

// Invalidate drops every cached filter variant of one dashboard.
func (s *Service) Invalidate(dashboardID, tenantID string) int {
	return s.cache.InvalidatePrefix(InvalidationPrefix(dashboardID, tenantID))
}

func (s *Service) compute(ctx context.Context, dashboardID, tenantID string, filters map[string]interface{}, key string) (*Data, error) {
	row, err := s.dashboards.GetByID(ctx, dashboardID)
	if err != nil {
		return nil, err
	}
	if row.TenantID != tenantID {
		return nil, apperrors.ErrDashboardNotFound
	}

	cfg, err := ParseConfig(row.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(s.registry); err != nil {
		return nil, err
	}

	data := &Data{
		DashboardID: dashboardID,
		TenantID:    tenantID,
		GeneratedAt: time.Now().UTC(),
		Sources:     make(map[string]*SourceResult, len(cfg.DataSources)),
		Charts:      make(map[string]map[string]interface{}, len(cfg.Charts)),
	}

	// Sources are fetched independently; one failure never blacks out the
	// dashboard.
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, ds := range cfg.DataSources {
		wg.Add(1)
		go func(ds sources.DataSource) {
			defer wg.Done()
			result := s.fetchSource(ctx, ds, filters)
			mu.Lock()
			data.Sources[ds.ID] = result
			mu.Unlock()
		}(ds)
	}
	wg.Wait()

	for _, chart := range cfg.Charts {
		source := data.Sources[chart.DataSource]
		if source == nil || source.Error != "" {
			data.Charts[chart.ID] = map[string]interface{}{"error": sourceErrorMessage}
			continue
		}
		payload, err := visualization.Generate(source.Data, chart)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"dashboard_id": dashboardID,
				"chart_id":     chart.ID,
			}).Warn("Chart generation failed")
			data.Charts[chart.ID] = map[string]interface{}{"error": sourceErrorMessage}
			continue
		}
		data.Charts[chart.ID] = payload
	}

	ttl := time.Duration(cfg.RefreshInterval) * time.Second
	s.cache.Set(key, data, ttl)
	return data, nil
}

func (s *Service) fetchSource(ctx context.Context, ds sources.DataSource, filters map[string]interface{}) *SourceResult {
	records, err := s.registry.Fetch(ctx, ds, filters)
	if err != nil {
		fetchErr := apperrors.NewSourceFetchError(ds.ID, err)
		s.logger.WithError(fetchErr).WithFields(logrus.Fields{
			"source_id":   ds.ID,
			"source_type": ds.Type,
		}).Warn("Data source fetch failed")
		return &SourceResult{Error: sourceErrorMessage}
	}

	if len(ds.Transformations) > 0 {
		engine := pipeline.NewEngine(func(source json.RawMessage) ([]pipeline.Record, error) {
			var ref sources.DataSource
			if err := json.Unmarshal(source, &ref); err != nil {
				return nil, fmt.Errorf("invalid join source: %w", err)
			}
			return s.registry.Fetch(ctx, ref, filters)
		})
		records, err = engine.Apply(records, ds.Transformations)
		if err != nil {
			s.logger.WithError(err).WithField("source_id", ds.ID).Warn("Source transformation failed")
			return &SourceResult{Error: sourceErrorMessage}
		}
	}

	return &SourceResult{Data: records, Summary: summarize(records)}
}

// summarize computes count always; total and average are taken over the
// first numeric field of the first record, when one exists.
func summarize(records []pipeline.Record) *Summary {
	summary := &Summary{Count: len(records)}
	if len(records) == 0 {
		return summary
	}

	keys := make([]string, 0, len(records[0]))
	for k := range records[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var field string
	for _, k := range keys {
		if _, numeric := toFloat(records[0][k]); numeric {
			field = k
			break
		}
	}
	if field == "" {
		return summary
	}

	var total float64
	var n int
	for _, record := range records {
		if v, numeric := toFloat(record[field]); numeric {
			total += v
			n++
		}
	}
	if n > 0 {
		summary.Field = field
		summary.Total = total
		summary.Average = total / float64(n)
	}
	return summary
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
