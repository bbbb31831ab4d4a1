package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
)

type stubAdapter struct {
	sourceType string
}

func (s *stubAdapter) Type() string { return s.sourceType }

func (s *stubAdapter) Fetch(_ context.Context, _ json.RawMessage, _ map[string]interface{}) ([]pipeline.Record, error) {
	return []pipeline.Record{{"from": s.sourceType}}, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestRegistry_ValidateUnknownType(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&stubAdapter{sourceType: TypeDatabase})

	err := registry.Validate([]DataSource{
		{ID: "s1", Type: TypeDatabase},
		{ID: "s2", Type: "spreadsheet"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "spreadsheet")
}

func TestRegistry_FetchDispatchesByType(t *testing.T) {
	registry := NewRegistry(testLogger())
	registry.Register(&stubAdapter{sourceType: TypeAPI})

	records, err := registry.Fetch(context.Background(), DataSource{ID: "s1", Type: TypeAPI}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, TypeAPI, records[0]["from"])

	_, err = registry.Fetch(context.Background(), DataSource{ID: "s2", Type: "unknown"}, nil)
	assert.Error(t, err)
}

func setupSourceDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (id TEXT, amount REAL, status TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders VALUES ('o1', 10, 'open'), ('o2', 20, 'closed'), ('o3', 30, 'open')`)
	require.NoError(t, err)

	return db
}

func TestDatabaseAdapter_TableLookup(t *testing.T) {
	adapter := NewDatabaseAdapter(setupSourceDB(t))

	config := json.RawMessage(`{"table":"orders","filters":{"status":"open"}}`)
	records, err := adapter.Fetch(context.Background(), config, nil)

	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDatabaseAdapter_RawQuery(t *testing.T) {
	adapter := NewDatabaseAdapter(setupSourceDB(t))

	config := json.RawMessage(`{"query":"SELECT id, amount FROM orders WHERE amount > 15"}`)
	records, err := adapter.Fetch(context.Background(), config, nil)

	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDatabaseAdapter_RejectsBadTableName(t *testing.T) {
	adapter := NewDatabaseAdapter(setupSourceDB(t))

	config := json.RawMessage(`{"table":"orders; DROP TABLE orders"}`)
	_, err := adapter.Fetch(context.Background(), config, nil)
	assert.Error(t, err)
}

func TestAPIAdapter_FetchWithFiltersAndToken(t *testing.T) {
	var gotAuth, gotRegion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRegion = r.URL.Query().Get("region")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"revenue":42}]}`))
	}))
	defer server.Close()

	adapter := NewAPIAdapter("secret-token", 0)
	config, _ := json.Marshal(APIConfig{Endpoint: server.URL})

	records, err := adapter.Fetch(context.Background(), config, map[string]interface{}{"region": "eu"})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 42.0, records[0]["revenue"])
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "eu", gotRegion)
}

func TestAPIAdapter_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewAPIAdapter("", 0)
	config, _ := json.Marshal(APIConfig{Endpoint: server.URL})

	_, err := adapter.Fetch(context.Background(), config, nil)
	assert.Error(t, err)
}

func TestIntegrationAdapter_Placeholder(t *testing.T) {
	adapter := NewIntegrationAdapter(nil)

	config := json.RawMessage(`{"integrationId":"stripe-1"}`)
	records, err := adapter.Fetch(context.Background(), config, nil)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "stripe-1", records[0]["integrationId"])
	assert.NotEmpty(t, records[0]["lastSync"])
}
