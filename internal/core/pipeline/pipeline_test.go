package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amounts() []Record {
	return []Record{
		{"amount": 10.0},
		{"amount": 20.0},
		{"amount": 30.0},
	}
}

func TestAggregate_Reducers(t *testing.T) {
	cfg := AggregateConfig{Aggregations: []Aggregation{
		{Field: "amount", Operation: "sum", Alias: "total"},
		{Field: "amount", Operation: "avg", Alias: "average"},
		{Field: "amount", Operation: "count", Alias: "count"},
		{Field: "amount", Operation: "min", Alias: "min"},
		{Field: "amount", Operation: "max", Alias: "max"},
	}}

	result := Aggregate(amounts(), cfg)

	assert.Equal(t, 60.0, result["total"])
	assert.Equal(t, 20.0, result["average"])
	assert.Equal(t, 3, result["count"])
	assert.Equal(t, 10.0, result["min"])
	assert.Equal(t, 30.0, result["max"])
}

func TestAggregate_ExcludesNonNumeric(t *testing.T) {
	records := []Record{
		{"amount": 10.0},
		{"amount": "not a number"},
		{"other": 5.0},
		{"amount": 20.0},
	}
	cfg := AggregateConfig{Aggregations: []Aggregation{
		{Field: "amount", Operation: "sum", Alias: "total"},
	}}

	result := Aggregate(records, cfg)
	assert.Equal(t, 30.0, result["total"])
}

func TestAggregate_OperationCaseInsensitive(t *testing.T) {
	cfg := AggregateConfig{Aggregations: []Aggregation{
		{Field: "amount", Operation: "SUM", Alias: "total"},
	}}
	result := Aggregate(amounts(), cfg)
	assert.Equal(t, 60.0, result["total"])
}

func TestFilter_Equals(t *testing.T) {
	records := []Record{
		{"status": "open"},
		{"status": "closed"},
	}
	cfg := FilterConfig{Conditions: map[string]Condition{
		"status": {Operator: "equals", Value: "open"},
	}}

	out := Filter(records, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, "open", out[0]["status"])
}

func TestFilter_Operators(t *testing.T) {
	records := []Record{
		{"name": "alpha service", "count": 5.0},
		{"name": "beta worker", "count": 15.0},
	}

	tests := []struct {
		name      string
		cfg       FilterConfig
		wantNames []string
	}{
		{
			name: "not_equals",
			cfg: FilterConfig{Conditions: map[string]Condition{
				"name": {Operator: "not_equals", Value: "alpha service"},
			}},
			wantNames: []string{"beta worker"},
		},
		{
			name: "greater_than",
			cfg: FilterConfig{Conditions: map[string]Condition{
				"count": {Operator: "greater_than", Value: 10},
			}},
			wantNames: []string{"beta worker"},
		},
		{
			name: "less_than",
			cfg: FilterConfig{Conditions: map[string]Condition{
				"count": {Operator: "less_than", Value: 10},
			}},
			wantNames: []string{"alpha service"},
		},
		{
			name: "contains",
			cfg: FilterConfig{Conditions: map[string]Condition{
				"name": {Operator: "contains", Value: "alpha"},
			}},
			wantNames: []string{"alpha service"},
		},
		{
			name: "unknown operator passes everything",
			cfg: FilterConfig{Conditions: map[string]Condition{
				"name": {Operator: "regex", Value: ".*"},
			}},
			wantNames: []string{"alpha service", "beta worker"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Filter(records, tt.cfg)
			var names []string
			for _, r := range out {
				names = append(names, r["name"].(string))
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestFilter_MissingFieldExcluded(t *testing.T) {
	records := []Record{
		{"status": "open"},
		{"other": "value"},
	}
	cfg := FilterConfig{Conditions: map[string]Condition{
		"status": {Operator: "equals", Value: "open"},
	}}

	out := Filter(records, cfg)
	require.Len(t, out, 1)
}

func TestFilter_NestedPath(t *testing.T) {
	records := []Record{
		{"customer": map[string]interface{}{"region": "eu"}},
		{"customer": map[string]interface{}{"region": "us"}},
	}
	cfg := FilterConfig{Conditions: map[string]Condition{
		"customer.region": {Operator: "equals", Value: "eu"},
	}}

	out := Filter(records, cfg)
	require.Len(t, out, 1)
}

func TestSort_MultiKeyStable(t *testing.T) {
	records := []Record{
		{"group": "b", "rank": 2.0, "id": "r1"},
		{"group": "a", "rank": 1.0, "id": "r2"},
		{"group": "a", "rank": 1.0, "id": "r3"},
		{"group": "a", "rank": 3.0, "id": "r4"},
	}
	cfg := SortConfig{Keys: []SortKey{
		{Field: "group", Direction: "asc"},
		{Field: "rank", Direction: "desc"},
	}}

	out := Sort(records, cfg)

	ids := []string{}
	for _, r := range out {
		ids = append(ids, r["id"].(string))
	}
	// r2/r3 tie on both keys; stable sort keeps their input order.
	assert.Equal(t, []string{"r4", "r2", "r3", "r1"}, ids)
}

func TestJoin_PreservesLeftCardinality(t *testing.T) {
	left := []Record{
		{"userId": "u1", "amount": 10.0},
		{"userId": "u2", "amount": 20.0},
		{"userId": "u3", "amount": 30.0},
	}
	right := []Record{
		{"userId": "u1", "name": "Ada"},
		{"userId": "u9", "name": "Grace"},
	}
	cfg := JoinConfig{On: "userId"}

	out := Join(left, right, cfg)

	require.Len(t, out, len(left))
	assert.Equal(t, "Ada", out[0]["name"])
	// Unmatched records pass through without null-padded right fields.
	_, hasName := out[1]["name"]
	assert.False(t, hasName)
	assert.Equal(t, 20.0, out[1]["amount"])
}

func TestJoin_LeftFieldsWin(t *testing.T) {
	left := []Record{{"id": "x", "value": 1.0}}
	right := []Record{{"id": "x", "value": 99.0, "extra": "r"}}

	out := Join(left, right, JoinConfig{On: "id"})

	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0]["value"])
	assert.Equal(t, "r", out[0]["extra"])
}

func TestMap_CopyAndLiteral(t *testing.T) {
	records := []Record{
		{"user": map[string]interface{}{"name": "Ada"}, "amount": 5.0},
	}
	cfg := MapConfig{Fields: map[string]string{
		"name":   "user.name",
		"total":  "amount",
		"source": "billing",
	}}

	out := Map(records, cfg)

	require.Len(t, out, 1)
	assert.Equal(t, "Ada", out[0]["name"])
	assert.Equal(t, 5.0, out[0]["total"])
	assert.Equal(t, "billing", out[0]["source"])
	_, hasAmount := out[0]["amount"]
	assert.False(t, hasAmount)
}

func TestLimit(t *testing.T) {
	out := Limit(amounts(), 2)
	assert.Len(t, out, 2)

	assert.Len(t, Limit(amounts(), 10), 3)
}

func TestEngine_StepOrderMatters(t *testing.T) {
	records := []Record{
		{"status": "closed", "id": 1.0},
		{"status": "open", "id": 2.0},
	}

	filterStep := Step{Type: StepFilter, Config: mustJSON(t, FilterConfig{
		Conditions: map[string]Condition{"status": {Operator: "equals", Value: "open"}},
	})}
	limitStep := Step{Type: StepLimit, Config: mustJSON(t, LimitConfig{Count: 1})}

	engine := NewEngine(nil)

	filterThenLimit, err := engine.Apply(records, []Step{filterStep, limitStep})
	require.NoError(t, err)
	limitThenFilter, err := engine.Apply(records, []Step{limitStep, filterStep})
	require.NoError(t, err)

	require.Len(t, filterThenLimit, 1)
	assert.Equal(t, "open", filterThenLimit[0]["status"])
	assert.Empty(t, limitThenFilter)
}

func TestEngine_UnknownStepFails(t *testing.T) {
	engine := NewEngine(nil)
	_, err := engine.Apply(nil, []Step{{Type: "explode", Config: json.RawMessage(`{}`)}})
	assert.Error(t, err)
}

func TestEngine_JoinUsesResolver(t *testing.T) {
	engine := NewEngine(func(source json.RawMessage) ([]Record, error) {
		return []Record{{"id": "a", "label": "joined"}}, nil
	})

	step := Step{Type: StepJoin, Config: mustJSON(t, JoinConfig{
		Source: json.RawMessage(`{"type":"query","name":"labels"}`),
		On:     "id",
	})}

	out, err := engine.Apply([]Record{{"id": "a"}}, []Step{step})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "joined", out[0]["label"])
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
