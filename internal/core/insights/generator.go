package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
	"github.com/opsai-platform/analytics-backend-go/internal/core/query"
)

// DataInsight is one surfaced analytical finding. Insights are ephemeral:
// regenerated per request, ids are not stable across calls.
type DataInsight struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Confidence  float64   `json:"confidence"`
	Actionable  bool      `json:"actionable"`
	Priority    string    `json:"priority"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// QueryRunner executes a tenant's named analytical query.
type QueryRunner interface {
	ExecuteByName(ctx context.Context, tenantID, name string, params map[string]interface{}) (*query.ResultSet, error)
}

// Generator runs the insight catalog against the query executor and gates
// what surfaces.
type Generator struct {
	runner  QueryRunner
	catalog []CatalogEntry
	logger  *logrus.Logger
}

// NewGenerator creates an insight generator over the given catalog.
func NewGenerator(runner QueryRunner, catalog []CatalogEntry, logger *logrus.Logger) *Generator {
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	return &Generator{runner: runner, catalog: catalog, logger: logger}
}

// Generate runs every catalog query for one tenant. A failing category is
// logged and skipped; the remaining categories still generate.
func (g *Generator) Generate(ctx context.Context, tenantID string) []DataInsight {
	var insights []DataInsight
	for _, entry := range g.catalog {
		result, err := g.runner.ExecuteByName(ctx, tenantID, entry.Query, nil)
		if err != nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"query":     entry.Query,
			}).Warn("Insight query failed")
			continue
		}
		for _, record := range result.Records {
			if insight, ok := g.convert(entry, record); ok {
				insights = append(insights, insight)
			}
		}
	}
	return insights
}

// convert applies the gating rules for one catalog entry to one result row.
func (g *Generator) convert(entry CatalogEntry, record pipeline.Record) (DataInsight, bool) {
	insight := DataInsight{
		ID:          uuid.NewString(),
		Type:        entry.Type,
		Title:       stringField(record, "title", titleFor(entry)),
		Description: stringField(record, "description", ""),
		Confidence:  entry.Confidence,
		Actionable:  boolField(record, "actionable", entry.Type == TypeRecommendation),
		Priority:    stringField(record, "priority", entry.Priority),
		GeneratedAt: time.Now().UTC(),
	}
	if v, ok := numericField(record, "confidence"); ok {
		insight.Confidence = v
	}

	switch entry.Type {
	case TypeTrend:
		// Sub-threshold movements are silently dropped.
		trend := stringField(record, "trend", "")
		change, _ := numericField(record, "change")
		if trend != "up" || change <= entry.Threshold {
			return DataInsight{}, false
		}
		if insight.Confidence == 0 {
			insight.Confidence = 1
		}
		if insight.Description == "" {
			insight.Description = fmt.Sprintf("%s is up %.1f%%", entry.Query, change)
		}
	case TypeCorrelation:
		strength, ok := numericField(record, "strength")
		if !ok || strength <= entry.Confidence {
			return DataInsight{}, false
		}
		insight.Confidence = strength
	}

	return insight, true
}

func titleFor(entry CatalogEntry) string {
	return strings.ReplaceAll(entry.Query, "_", " ")
}

func stringField(record pipeline.Record, field, fallback string) string {
	if v, ok := record[field].(string); ok && v != "" {
		return v
	}
	return fallback
}

func boolField(record pipeline.Record, field string, fallback bool) bool {
	if v, ok := record[field].(bool); ok {
		return v
	}
	return fallback
}

func numericField(record pipeline.Record, field string) (float64, bool) {
	switch v := record[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
