package insights

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Insight type constants
const (
	TypeTrend          = "trend"
	TypeAnomaly        = "anomaly"
	TypeCorrelation    = "correlation"
	TypeForecast       = "forecast"
	TypeRecommendation = "recommendation"
)

// CatalogEntry names one analytical query and its gating parameters.
type CatalogEntry struct {
	Query string `yaml:"query" json:"query"`
	Type  string `yaml:"type" json:"type"`
	// Threshold gates trend insights: surface only when change exceeds it.
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	// Confidence is the default floor applied when the row carries none.
	Confidence float64 `yaml:"confidence,omitempty" json:"confidence,omitempty"`
	Priority   string  `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// DefaultCatalog is the fixed set of analytical queries the generator runs
// per tenant.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Query: "revenue_trend", Type: TypeTrend, Threshold: 10, Priority: "high"},
		{Query: "user_growth_trend", Type: TypeTrend, Threshold: 5, Priority: "medium"},
		{Query: "performance_anomalies", Type: TypeAnomaly, Confidence: 0.75, Priority: "high"},
		{Query: "usage_anomalies", Type: TypeAnomaly, Confidence: 0.70, Priority: "medium"},
		{Query: "correlation_analysis", Type: TypeCorrelation, Confidence: 0.7, Priority: "medium"},
		{Query: "forecast_analysis", Type: TypeForecast, Confidence: 0.65, Priority: "medium"},
		{Query: "recommendation_engine", Type: TypeRecommendation, Confidence: 0.60, Priority: "low"},
	}
}

// LoadCatalog reads a YAML catalog override. An empty path returns the
// default catalog.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read insight catalog: %w", err)
	}

	var catalog struct {
		Insights []CatalogEntry `yaml:"insights"`
	}
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("invalid insight catalog: %w", err)
	}
	if len(catalog.Insights) == 0 {
		return DefaultCatalog(), nil
	}

	for i, entry := range catalog.Insights {
		if entry.Query == "" || entry.Type == "" {
			return nil, fmt.Errorf("insight catalog entry %d needs query and type", i)
		}
	}
	return catalog.Insights, nil
}
