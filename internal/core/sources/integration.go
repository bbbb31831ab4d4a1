package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
)

// IntegrationConfig configures a third-party integration source.
type IntegrationConfig struct {
	IntegrationID string `json:"integrationId"`
}

// IntegrationFetcher is implemented by concrete integration backends.
type IntegrationFetcher interface {
	FetchIntegrationData(ctx context.Context, integrationID string) ([]pipeline.Record, error)
}

// IntegrationAdapter bridges to third-party integration backends. Without a
// wired backend it returns the placeholder shape the dashboard layer expects.
type IntegrationAdapter struct {
	backend IntegrationFetcher
}

// NewIntegrationAdapter creates an integration source adapter. backend may be
// nil.
func NewIntegrationAdapter(backend IntegrationFetcher) *IntegrationAdapter {
	return &IntegrationAdapter{backend: backend}
}

func (a *IntegrationAdapter) Type() string { return TypeIntegration }

func (a *IntegrationAdapter) Fetch(ctx context.Context, config json.RawMessage, _ map[string]interface{}) ([]pipeline.Record, error) {
	var cfg IntegrationConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid integration source config: %w", err)
	}
	if cfg.IntegrationID == "" {
		return nil, fmt.Errorf("integration source needs an integrationId")
	}

	if a.backend != nil {
		return a.backend.FetchIntegrationData(ctx, cfg.IntegrationID)
	}

	return []pipeline.Record{{
		"integrationId": cfg.IntegrationID,
		"data":          []interface{}{},
		"lastSync":      time.Now().UTC().Format(time.RFC3339),
	}}, nil
}
