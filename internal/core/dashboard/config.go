package dashboard

import (
	"encoding/json"
	"fmt"

	"github.com/opsai-platform/analytics-backend-go/internal/core/sources"
	"github.com/opsai-platform/analytics-backend-go/internal/core/visualization"
)

// Config is the parsed dashboard configuration blob.
type Config struct {
	// RefreshInterval is the cache TTL in seconds. Zero means the service
	// default.
	RefreshInterval int                          `json:"refreshInterval,omitempty"`
	DataSources     []sources.DataSource         `json:"dataSources"`
	Charts          []visualization.ChartConfig  `json:"charts,omitempty"`
	Filters         []map[string]interface{}     `json:"filters,omitempty"`
	Permissions     map[string][]string          `json:"permissions,omitempty"`
}

// ParseConfig decodes a stored dashboard configuration blob.
func ParseConfig(raw json.RawMessage) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid dashboard config: %w", err)
	}
	return &cfg, nil
}

// Validate checks structural integrity: every chart must reference a source
// declared in the same dashboard, and every source type must have a
// registered adapter. Violations are configuration errors, not fetch errors.
func (c *Config) Validate(registry *sources.Registry) error {
	if err := registry.Validate(c.DataSources); err != nil {
		return err
	}

	declared := make(map[string]bool, len(c.DataSources))
	for _, ds := range c.DataSources {
		if ds.ID == "" {
			return fmt.Errorf("data source without an id")
		}
		if declared[ds.ID] {
			return fmt.Errorf("duplicate data source id: %s", ds.ID)
		}
		declared[ds.ID] = true
	}

	for _, chart := range c.Charts {
		if !declared[chart.DataSource] {
			return fmt.Errorf("chart %s references unknown data source %s", chart.ID, chart.DataSource)
		}
	}
	return nil
}
