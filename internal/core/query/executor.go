package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
	"github.com/opsai-platform/analytics-backend-go/internal/core/sources"
	"github.com/opsai-platform/analytics-backend-go/internal/database/models"
	"github.com/opsai-platform/analytics-backend-go/internal/database/repositories"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
)

// ResultSet is the outcome of a single query execution. A failed execution
// never yields a partial result set.
type ResultSet struct {
	QueryID    string            `json:"queryId"`
	Name       string            `json:"name"`
	Records    []pipeline.Record `json:"records"`
	RowCount   int               `json:"rowCount"`
	ExecutedAt time.Time         `json:"executedAt"`
}

// AggregationSpec is the structured body of an aggregation query.
type AggregationSpec struct {
	Table        string                 `json:"table"`
	Aggregations []AggregationField     `json:"aggregations"`
	GroupBy      []string               `json:"groupBy,omitempty"`
	Filters      map[string]interface{} `json:"filters,omitempty"`
}

// AggregationField selects one aggregate column.
type AggregationField struct {
	Function string `json:"function"`
	Field    string `json:"field"`
	Alias    string `json:"alias"`
}

// PipelineSpec is the structured body of a pipeline query.
type PipelineSpec struct {
	Source json.RawMessage `json:"source"`
	Steps  []pipeline.Step `json:"steps"`
}

// SourceRef points a pipeline (or join step) at its input: either another
// named query or an inline data source definition.
type SourceRef struct {
	Type    string          `json:"type"`
	QueryID string          `json:"queryId,omitempty"`
	Name    string          `json:"name,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

var supportedAggregates = map[string]bool{
	"sum": true, "avg": true, "count": true, "min": true, "max": true,
}

// Executor resolves stored query definitions by type and produces result
// sets.
type Executor struct {
	queries  repositories.QueryRepository
	registry *sources.Registry
	db       *sqlx.DB
	logger   *logrus.Logger

	executions *prometheus.CounterVec
}

// NewExecutor creates a query executor.
func NewExecutor(queries repositories.QueryRepository, registry *sources.Registry, db *sqlx.DB, logger *logrus.Logger) *Executor {
	return &Executor{
		queries:  queries,
		registry: registry,
		db:       db,
		logger:   logger,
	}
}

// RegisterMetrics attaches execution counters to reg. Without it the
// executor runs unmetered, which is what tests want.
func (e *Executor) RegisterMetrics(reg prometheus.Registerer) {
	e.executions = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_query_executions_total",
		Help: "Stored query executions by query type and outcome.",
	}, []string{"type", "status"})
}

// Execute runs the stored query identified by queryID with the given
// parameters. Unknown ids and ids owned by a different tenant fail with
// ErrQueryNotFound, so query existence never leaks across tenants; all
// execution failures are wrapped so callers see a generic message while the
// cause is logged.
func (e *Executor) Execute(ctx context.Context, tenantID, queryID string, params map[string]interface{}) (*ResultSet, error) {
	def, err := e.queries.GetByID(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if def.TenantID != tenantID {
		return nil, apperrors.ErrQueryNotFound
	}
	return e.executeDefinition(ctx, def, params)
}

// ExecuteByName runs a tenant's named query. The insight catalog resolves
// its fixed queries this way.
func (e *Executor) ExecuteByName(ctx context.Context, tenantID, name string, params map[string]interface{}) (*ResultSet, error) {
	def, err := e.queries.GetByName(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}
	return e.executeDefinition(ctx, def, params)
}

func (e *Executor) executeDefinition(ctx context.Context, def *models.AnalyticsQuery, params map[string]interface{}) (*ResultSet, error) {
	merged := mergeParams(def.Parameters, params)

	var (
		records []pipeline.Record
		err     error
	)
	switch def.Type {
	case models.QueryTypeRaw:
		records, err = e.executeRaw(ctx, def, merged)
	case models.QueryTypeAggregation:
		records, err = e.executeAggregation(ctx, def, merged)
	case models.QueryTypePipeline:
		records, err = e.executePipeline(ctx, def, merged)
	default:
		err = fmt.Errorf("unknown query type: %s", def.Type)
	}
	if err != nil {
		// Sentinel lookup failures from recursive named-query resolution
		// still surface as execution failures of the outer query.
		e.logger.WithError(err).WithFields(logrus.Fields{
			"query_id":   def.ID,
			"query_type": def.Type,
		}).Error("Query execution failed")
		e.count(def.Type, "error")
		return nil, apperrors.NewExecutionError(def.ID, err)
	}
	e.count(def.Type, "success")

	return &ResultSet{
		QueryID:    def.ID,
		Name:       def.Name,
		Records:    records,
		RowCount:   len(records),
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// executeRaw substitutes :param placeholders and sends the body verbatim to
// the backing store. Callers are responsible for trusted input.
func (e *Executor) executeRaw(ctx context.Context, def *models.AnalyticsQuery, params map[string]interface{}) ([]pipeline.Record, error) {
	var body string
	if err := json.Unmarshal(def.QueryBody, &body); err != nil {
		// Older definitions store the body as {"sql": "..."}.
		var wrapper struct {
			SQL string `json:"sql"`
		}
		if err2 := json.Unmarshal(def.QueryBody, &wrapper); err2 != nil || wrapper.SQL == "" {
			return nil, fmt.Errorf("raw query body must be a string: %w", err)
		}
		body = wrapper.SQL
	}

	statement := SubstituteParams(body, params)
	return e.queryRecords(ctx, statement)
}

// executeAggregation builds a SELECT from the structured spec and runs it.
func (e *Executor) executeAggregation(ctx context.Context, def *models.AnalyticsQuery, params map[string]interface{}) ([]pipeline.Record, error) {
	var spec AggregationSpec
	if err := json.Unmarshal(def.QueryBody, &spec); err != nil {
		return nil, fmt.Errorf("invalid aggregation spec: %w", err)
	}
	if spec.Table == "" {
		return nil, fmt.Errorf("aggregation spec needs a table")
	}
	if len(spec.Aggregations) == 0 {
		return nil, fmt.Errorf("aggregation spec needs at least one aggregation")
	}

	var columns []string
	for _, agg := range spec.Aggregations {
		fn := strings.ToLower(agg.Function)
		if !supportedAggregates[fn] {
			return nil, fmt.Errorf("unsupported aggregate function: %s", agg.Function)
		}
		alias := agg.Alias
		if alias == "" {
			alias = fmt.Sprintf("%s_%s", fn, agg.Field)
		}
		columns = append(columns, fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(fn), agg.Field, alias))
	}
	columns = append(columns, spec.GroupBy...)

	statement := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), spec.Table)

	if len(spec.Filters) > 0 {
		var clauses []string
		for field, value := range spec.Filters {
			clauses = append(clauses, fmt.Sprintf("%s = %s", field, LiteralValue(value)))
		}
		statement += " WHERE " + strings.Join(clauses, " AND ")
	}
	if len(spec.GroupBy) > 0 {
		statement += " GROUP BY " + strings.Join(spec.GroupBy, ", ")
	}

	statement = SubstituteParams(statement, params)
	return e.queryRecords(ctx, statement)
}

// executePipeline fetches the source and folds the steps left to right.
func (e *Executor) executePipeline(ctx context.Context, def *models.AnalyticsQuery, params map[string]interface{}) ([]pipeline.Record, error) {
	var spec PipelineSpec
	if err := json.Unmarshal(def.QueryBody, &spec); err != nil {
		return nil, fmt.Errorf("invalid pipeline spec: %w", err)
	}

	engine := pipeline.NewEngine(func(source json.RawMessage) ([]pipeline.Record, error) {
		return e.resolveSource(ctx, def.TenantID, source, params)
	})

	records, err := e.resolveSource(ctx, def.TenantID, spec.Source, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pipeline source: %w", err)
	}

	return engine.Apply(records, spec.Steps)
}

// resolveSource fetches records for a SourceRef: a recursive named query or
// an inline data source handled by the adapter registry.
func (e *Executor) resolveSource(ctx context.Context, tenantID string, source json.RawMessage, params map[string]interface{}) ([]pipeline.Record, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("pipeline source is required")
	}

	var ref SourceRef
	if err := json.Unmarshal(source, &ref); err != nil {
		return nil, fmt.Errorf("invalid pipeline source: %w", err)
	}

	if ref.Type == "query" || ref.QueryID != "" {
		var result *ResultSet
		var err error
		if ref.QueryID != "" {
			result, err = e.Execute(ctx, tenantID, ref.QueryID, params)
		} else {
			result, err = e.ExecuteByName(ctx, tenantID, ref.Name, params)
		}
		if err != nil {
			return nil, err
		}
		return result.Records, nil
	}

	ds := sources.DataSource{ID: ref.Name, Type: ref.Type, Config: ref.Config}
	filters := make(map[string]interface{}, len(params))
	for k, v := range params {
		filters[k] = v
	}
	return e.registry.Fetch(ctx, ds, filters)
}

func (e *Executor) queryRecords(ctx context.Context, statement string) ([]pipeline.Record, error) {
	rows, err := e.db.QueryxContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("statement failed: %w", err)
	}
	defer rows.Close()

	var records []pipeline.Record
	for rows.Next() {
		record := pipeline.Record{}
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for k, v := range record {
			if b, ok := v.([]byte); ok {
				record[k] = string(b)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return records, nil
}

func (e *Executor) count(queryType, status string) {
	if e.executions != nil {
		e.executions.WithLabelValues(queryType, status).Inc()
	}
}

// IsNotFound reports whether err is a missing-query lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrQueryNotFound)
}

func mergeParams(defaults json.RawMessage, overrides map[string]interface{}) map[string]interface{} {
	merged := map[string]interface{}{}
	if len(defaults) > 0 {
		_ = json.Unmarshal(defaults, &merged)
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
