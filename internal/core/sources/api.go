package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
)

// APIConfig configures an HTTP API source.
type APIConfig struct {
	Endpoint string            `json:"endpoint"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// APIAdapter fetches records from an external HTTP endpoint. Filters are
// appended as URL query parameters; a bearer token from process configuration
// is injected when present.
type APIAdapter struct {
	client *http.Client
	token  string
}

// NewAPIAdapter creates an API source adapter.
func NewAPIAdapter(token string, timeout time.Duration) *APIAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIAdapter{
		client: &http.Client{Timeout: timeout},
		token:  token,
	}
}

func (a *APIAdapter) Type() string { return TypeAPI }

func (a *APIAdapter) Fetch(ctx context.Context, config json.RawMessage, filters map[string]interface{}) ([]pipeline.Record, error) {
	var cfg APIConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid api source config: %w", err)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("api source needs an endpoint")
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid api endpoint: %w", err)
	}

	params := endpoint.Query()
	for key, value := range filters {
		params.Set(key, fmt.Sprintf("%v", value))
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build api request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read api response: %w", err)
	}

	return decodeRecords(body)
}

// decodeRecords accepts either a bare JSON array of objects or an envelope
// with a top-level "data" array.
func decodeRecords(body []byte) ([]pipeline.Record, error) {
	var records []pipeline.Record
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}

	var envelope struct {
		Data []pipeline.Record `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}

	var single pipeline.Record
	if err := json.Unmarshal(body, &single); err == nil {
		return []pipeline.Record{single}, nil
	}

	return nil, fmt.Errorf("api response is not a record collection")
}
