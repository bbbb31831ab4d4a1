package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
)

// Source type identifiers.
const (
	TypeDatabase    = "database"
	TypeAPI         = "api"
	TypeFile        = "file"
	TypeIntegration = "integration"
)

// DataSource is a configured origin of raw records plus its ordered
// transformation pipeline. Transformation order is preserved exactly as
// authored.
type DataSource struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Config          json.RawMessage `json:"config"`
	Transformations []pipeline.Step `json:"transformations,omitempty"`
}

// Adapter is the uniform fetch contract over heterogeneous backing stores.
type Adapter interface {
	Type() string
	Fetch(ctx context.Context, config json.RawMessage, filters map[string]interface{}) ([]pipeline.Record, error)
}

// Registry maps source-type identifiers to registered adapters. Unknown
// identifiers fail at configuration-validation time, not at fetch time.
type Registry struct {
	adapters map[string]Adapter
	logger   *logrus.Logger
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// Register adds an adapter under its source type, replacing any previous
// registration for that type.
func (r *Registry) Register(adapter Adapter) {
	r.adapters[adapter.Type()] = adapter
	r.logger.WithField("source_type", adapter.Type()).Debug("Source adapter registered")
}

// Validate checks that every source's type has a registered adapter.
func (r *Registry) Validate(dataSources []DataSource) error {
	for _, ds := range dataSources {
		if _, ok := r.adapters[ds.Type]; !ok {
			return fmt.Errorf("data source %q has unknown type %q", ds.ID, ds.Type)
		}
	}
	return nil
}

// Fetch resolves the adapter for a source and fetches its raw records.
func (r *Registry) Fetch(ctx context.Context, ds DataSource, filters map[string]interface{}) ([]pipeline.Record, error) {
	adapter, ok := r.adapters[ds.Type]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source type %q", ds.Type)
	}
	return adapter.Fetch(ctx, ds.Config, filters)
}
