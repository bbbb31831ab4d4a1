package insights

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// Trend direction constants
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// metricsQuery is the named query business metrics are derived from. Rows
// carry {name, category, current, previous}.
const metricsQuery = "business_metrics"

// stableBand is the percentage band within which a metric counts as stable.
const stableBand = 1.0

// BusinessMetric is a derived, per-request metric. It is never persisted as
// source of truth.
type BusinessMetric struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Current     float64   `json:"current"`
	Trend       string    `json:"trend"`
	Change      float64   `json:"change"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// BusinessMetrics recomputes the tenant's metrics from the backing named
// query. Rows without a usable current value are skipped.
func (g *Generator) BusinessMetrics(ctx context.Context, tenantID string) ([]BusinessMetric, error) {
	result, err := g.runner.ExecuteByName(ctx, tenantID, metricsQuery, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	metrics := make([]BusinessMetric, 0, len(result.Records))
	for _, record := range result.Records {
		current, ok := numericField(record, "current")
		if !ok {
			continue
		}

		metric := BusinessMetric{
			ID:          uuid.NewString(),
			Name:        stringField(record, "name", "unknown"),
			Category:    stringField(record, "category", "general"),
			Current:     current,
			Trend:       TrendStable,
			LastUpdated: now,
		}

		if previous, ok := numericField(record, "previous"); ok && previous != 0 {
			metric.Change = (current - previous) / previous * 100
			switch {
			case math.Abs(metric.Change) < stableBand:
				metric.Trend = TrendStable
			case metric.Change > 0:
				metric.Trend = TrendUp
			default:
				metric.Trend = TrendDown
			}
		}

		metrics = append(metrics, metric)
	}
	return metrics, nil
}
