package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Record is a single row flowing through the pipeline.
type Record = map[string]interface{}

// Step is one operator in a transformation sequence. Steps are applied in
// author-specified order; order is significant.
type Step struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// Step type constants
const (
	StepFilter    = "filter"
	StepSort      = "sort"
	StepAggregate = "aggregate"
	StepJoin      = "join"
	StepMap       = "map"
	StepLimit     = "limit"
)

// Condition is a single field condition inside a filter step.
type Condition struct {
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// FilterConfig keeps records where all listed field conditions hold.
type FilterConfig struct {
	Conditions map[string]Condition `json:"conditions"`
}

// SortKey is one key of a multi-key sort.
type SortKey struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // asc (default) or desc
}

// SortConfig configures a stable multi-key sort.
type SortConfig struct {
	Keys []SortKey `json:"keys"`
}

// Aggregation reduces one field to a single aliased value.
type Aggregation struct {
	Field     string `json:"field"`
	Operation string `json:"operation"` // sum, avg, count, min, max
	Alias     string `json:"alias"`
}

// AggregateConfig reduces the whole collection to a single record.
type AggregateConfig struct {
	Aggregations []Aggregation `json:"aggregations"`
}

// JoinConfig left-joins against a second fetched collection by equality on a
// named key. Unmatched left records pass through unmodified.
type JoinConfig struct {
	Source json.RawMessage `json:"source"`
	On     string          `json:"on"`
	// RightOn defaults to On when empty.
	RightOn string `json:"rightOn,omitempty"`
}

// MapConfig projects or renames fields. A mapping value is a source field
// path (copy) or, when it resolves to nothing, a literal constant.
type MapConfig struct {
	Fields map[string]string `json:"fields"`
}

// LimitConfig truncates to the first N records. No offset support.
type LimitConfig struct {
	Count int `json:"count"`
}

// JoinResolver fetches the right-hand collection for a join step.
type JoinResolver func(source json.RawMessage) ([]Record, error)

// Engine applies ordered transformation steps to record collections. It is
// stateless; one engine serves all concurrent requests.
type Engine struct {
	resolveJoin JoinResolver
}

// NewEngine creates a pipeline engine. resolveJoin may be nil when no join
// steps will be executed.
func NewEngine(resolveJoin JoinResolver) *Engine {
	return &Engine{resolveJoin: resolveJoin}
}

// Apply folds steps over records left to right. The first step consumes the
// source fetch result; each subsequent step consumes its predecessor's output.
func (e *Engine) Apply(records []Record, steps []Step) ([]Record, error) {
	out := records
	for i, step := range steps {
		var err error
		out, err = e.applyStep(out, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Type, err)
		}
	}
	return out, nil
}

func (e *Engine) applyStep(records []Record, step Step) ([]Record, error) {
	switch step.Type {
	case StepFilter:
		var cfg FilterConfig
		if err := json.Unmarshal(step.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid filter config: %w", err)
		}
		return Filter(records, cfg), nil
	case StepSort:
		var cfg SortConfig
		if err := json.Unmarshal(step.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid sort config: %w", err)
		}
		return Sort(records, cfg), nil
	case StepAggregate:
		var cfg AggregateConfig
		if err := json.Unmarshal(step.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid aggregate config: %w", err)
		}
		return []Record{Aggregate(records, cfg)}, nil
	case StepJoin:
		var cfg JoinConfig
		if err := json.Unmarshal(step.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid join config: %w", err)
		}
		if e.resolveJoin == nil {
			return nil, fmt.Errorf("join step requires a source resolver")
		}
		right, err := e.resolveJoin(cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch join source: %w", err)
		}
		return Join(records, right, cfg), nil
	case StepMap:
		var cfg MapConfig
		if err := json.Unmarshal(step.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid map config: %w", err)
		}
		return Map(records, cfg), nil
	case StepLimit:
		var cfg LimitConfig
		if err := json.Unmarshal(step.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid limit config: %w", err)
		}
		return Limit(records, cfg.Count), nil
	default:
		return nil, fmt.Errorf("unknown step type: %s", step.Type)
	}
}

// Filter keeps records where all listed field conditions hold. An unknown
// operator passes the record through; an unresolvable field fails the
// condition for that record.
func Filter(records []Record, cfg FilterConfig) []Record {
	out := make([]Record, 0, len(records))
	for _, record := range records {
		if matchesAll(record, cfg.Conditions) {
			out = append(out, record)
		}
	}
	return out
}

func matchesAll(record Record, conditions map[string]Condition) bool {
	for field, cond := range conditions {
		value, ok := Lookup(record, field)
		switch cond.Operator {
		case "equals":
			if !ok || !valuesEqual(value, cond.Value) {
				return false
			}
		case "not_equals":
			if !ok || valuesEqual(value, cond.Value) {
				return false
			}
		case "greater_than":
			left, lok := toFloat(value)
			right, rok := toFloat(cond.Value)
			if !ok || !lok || !rok || left <= right {
				return false
			}
		case "less_than":
			left, lok := toFloat(value)
			right, rok := toFloat(cond.Value)
			if !ok || !lok || !rok || left >= right {
				return false
			}
		case "contains":
			if !ok || !strings.Contains(toString(value), toString(cond.Value)) {
				return false
			}
		default:
			// Permissive default: unknown operators pass the record through.
		}
	}
	return true
}

// Sort performs a stable, direction-aware, multi-key sort. Ties are broken by
// subsequent keys in listed order.
func Sort(records []Record, cfg SortConfig) []Record {
	out := make([]Record, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		for _, key := range cfg.Keys {
			left, _ := Lookup(out[i], key.Field)
			right, _ := Lookup(out[j], key.Field)
			cmp := compareValues(left, right)
			if cmp == 0 {
				continue
			}
			if strings.EqualFold(key.Direction, "desc") {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return out
}

// Aggregate reduces the whole collection to a single record. Non-numeric and
// unresolvable values are excluded from numeric reducers.
func Aggregate(records []Record, cfg AggregateConfig) Record {
	result := Record{}
	for _, agg := range cfg.Aggregations {
		alias := agg.Alias
		if alias == "" {
			alias = fmt.Sprintf("%s_%s", agg.Operation, agg.Field)
		}
		result[alias] = reduce(records, agg)
	}
	return result
}

func reduce(records []Record, agg Aggregation) interface{} {
	op := strings.ToLower(agg.Operation)
	if op == "count" {
		return len(records)
	}

	var values []float64
	for _, record := range records {
		raw, ok := Lookup(record, agg.Field)
		if !ok {
			continue
		}
		if v, numeric := toFloat(raw); numeric {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil
	}

	switch op {
	case "sum":
		return sum(values)
	case "avg":
		return sum(values) / float64(len(values))
	case "min":
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case "max":
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	default:
		return nil
	}
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// Join left-joins records against right by equality on the configured key.
// Output cardinality always equals len(records); unmatched left records pass
// through without null-padding of right-side fields.
func Join(records, right []Record, cfg JoinConfig) []Record {
	rightOn := cfg.RightOn
	if rightOn == "" {
		rightOn = cfg.On
	}

	index := make(map[string]Record, len(right))
	for _, r := range right {
		if key, ok := Lookup(r, rightOn); ok {
			ks := toString(key)
			if _, seen := index[ks]; !seen {
				index[ks] = r
			}
		}
	}

	out := make([]Record, 0, len(records))
	for _, left := range records {
		key, ok := Lookup(left, cfg.On)
		if !ok {
			out = append(out, left)
			continue
		}
		match, found := index[toString(key)]
		if !found {
			out = append(out, left)
			continue
		}
		merged := Record{}
		for k, v := range left {
			merged[k] = v
		}
		for k, v := range match {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
		out = append(out, merged)
	}
	return out
}

// Map projects or renames fields. A mapping value that resolves as a source
// path copies that value; otherwise the raw mapping string is used as a
// literal constant.
func Map(records []Record, cfg MapConfig) []Record {
	out := make([]Record, 0, len(records))
	for _, record := range records {
		projected := Record{}
		for target, source := range cfg.Fields {
			if value, ok := Lookup(record, source); ok {
				projected[target] = value
			} else {
				projected[target] = source
			}
		}
		out = append(out, projected)
	}
	return out
}

// Limit truncates to the first n records.
func Limit(records []Record, n int) []Record {
	if n < 0 || n >= len(records) {
		return records
	}
	return records[:n]
}
