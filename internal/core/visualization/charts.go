package visualization

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
)

// Chart type constants
const (
	ChartLine    = "line"
	ChartBar     = "bar"
	ChartPie     = "pie"
	ChartTable   = "table"
	ChartGauge   = "gauge"
	ChartHeatmap = "heatmap"
)

// ChartConfig binds one chart to a dashboard data source. DataSource must
// resolve to a source id in the same dashboard.
type ChartConfig struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Title      string          `json:"title,omitempty"`
	DataSource string          `json:"dataSource"`
	Options    json.RawMessage `json:"options,omitempty"`
}

// SeriesOptions configures line and bar charts.
type SeriesOptions struct {
	LabelField string   `json:"labelField"`
	ValueField string   `json:"valueField,omitempty"`
	Series     []string `json:"series,omitempty"`
	Colors     []string `json:"colors,omitempty"`
}

// TableOptions configures table charts.
type TableOptions struct {
	Columns []string `json:"columns,omitempty"`
}

// GaugeOptions configures gauge charts.
type GaugeOptions struct {
	ValueField string  `json:"valueField"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

// HeatmapOptions configures a bucketed 2D heatmap.
type HeatmapOptions struct {
	XField   string `json:"xField"`
	YField   string `json:"yField"`
	XBuckets int    `json:"xBuckets,omitempty"`
	YBuckets int    `json:"yBuckets,omitempty"`
}

// Dataset is one plotted series.
type Dataset struct {
	Label string        `json:"label"`
	Data  []interface{} `json:"data"`
	Color string        `json:"color,omitempty"`
}

// Generate converts a transformed record collection into a chart-library
// agnostic payload for the configured chart type.
func Generate(records []pipeline.Record, cfg ChartConfig) (map[string]interface{}, error) {
	switch cfg.Type {
	case ChartLine, ChartBar:
		return generateSeries(records, cfg)
	case ChartPie:
		return generatePie(records, cfg)
	case ChartTable:
		return generateTable(records, cfg)
	case ChartGauge:
		return generateGauge(records, cfg)
	case ChartHeatmap:
		return generateHeatmap(records, cfg)
	default:
		return nil, fmt.Errorf("unknown chart type: %s", cfg.Type)
	}
}

// hueColor spaces n series evenly around the hue wheel.
func hueColor(index, count int) string {
	if count <= 0 {
		count = 1
	}
	return fmt.Sprintf("hsl(%d, 70%%, 50%%)", index*360/count)
}

func generateSeries(records []pipeline.Record, cfg ChartConfig) (map[string]interface{}, error) {
	var opts SeriesOptions
	if len(cfg.Options) > 0 {
		if err := json.Unmarshal(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("invalid %s chart options: %w", cfg.Type, err)
		}
	}

	series := opts.Series
	if len(series) == 0 && opts.ValueField != "" {
		series = []string{opts.ValueField}
	}
	if len(series) == 0 {
		series = inferNumericFields(records, opts.LabelField)
	}

	labels := make([]interface{}, 0, len(records))
	for _, record := range records {
		if value, ok := pipeline.Lookup(record, opts.LabelField); ok {
			labels = append(labels, value)
		} else {
			labels = append(labels, nil)
		}
	}

	datasets := make([]Dataset, 0, len(series))
	for i, field := range series {
		data := make([]interface{}, 0, len(records))
		for _, record := range records {
			value, _ := pipeline.Lookup(record, field)
			data = append(data, value)
		}
		color := hueColor(i, len(series))
		if i < len(opts.Colors) {
			color = opts.Colors[i]
		}
		datasets = append(datasets, Dataset{Label: field, Data: data, Color: color})
	}

	return map[string]interface{}{
		"labels":   labels,
		"datasets": datasets,
	}, nil
}

func generatePie(records []pipeline.Record, cfg ChartConfig) (map[string]interface{}, error) {
	var opts SeriesOptions
	if len(cfg.Options) > 0 {
		if err := json.Unmarshal(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("invalid pie chart options: %w", err)
		}
	}

	labels := make([]interface{}, 0, len(records))
	data := make([]interface{}, 0, len(records))
	for _, record := range records {
		label, _ := pipeline.Lookup(record, opts.LabelField)
		value, _ := pipeline.Lookup(record, opts.ValueField)
		labels = append(labels, label)
		data = append(data, value)
	}

	colors := make([]string, len(labels))
	for i := range labels {
		if i < len(opts.Colors) {
			colors[i] = opts.Colors[i]
		} else {
			colors[i] = hueColor(i, len(labels))
		}
	}

	return map[string]interface{}{
		"labels": labels,
		"datasets": []map[string]interface{}{{
			"data":            data,
			"backgroundColor": colors,
		}},
	}, nil
}

func generateTable(records []pipeline.Record, cfg ChartConfig) (map[string]interface{}, error) {
	var opts TableOptions
	if len(cfg.Options) > 0 {
		if err := json.Unmarshal(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("invalid table options: %w", err)
		}
	}

	columns := opts.Columns
	if len(columns) == 0 && len(records) > 0 {
		for key := range records[0] {
			columns = append(columns, key)
		}
		sort.Strings(columns)
	}

	rows := make([][]interface{}, 0, len(records))
	for _, record := range records {
		row := make([]interface{}, len(columns))
		for i, col := range columns {
			row[i], _ = pipeline.Lookup(record, col)
		}
		rows = append(rows, row)
	}

	return map[string]interface{}{
		"columns": columns,
		"rows":    rows,
	}, nil
}

func generateGauge(records []pipeline.Record, cfg ChartConfig) (map[string]interface{}, error) {
	var opts GaugeOptions
	if len(cfg.Options) > 0 {
		if err := json.Unmarshal(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("invalid gauge options: %w", err)
		}
	}
	if opts.Max == opts.Min {
		opts.Max = opts.Min + 100
	}

	var value float64
	if len(records) > 0 {
		if raw, ok := pipeline.Lookup(records[0], opts.ValueField); ok {
			value, _ = toFloat(raw)
		}
	}

	percentage := (value - opts.Min) / (opts.Max - opts.Min) * 100
	percentage = math.Max(0, math.Min(100, percentage))

	return map[string]interface{}{
		"value":      value,
		"min":        opts.Min,
		"max":        opts.Max,
		"percentage": percentage,
	}, nil
}

// generateHeatmap buckets records into an x-bucket by y-bucket count matrix.
func generateHeatmap(records []pipeline.Record, cfg ChartConfig) (map[string]interface{}, error) {
	var opts HeatmapOptions
	if len(cfg.Options) > 0 {
		if err := json.Unmarshal(cfg.Options, &opts); err != nil {
			return nil, fmt.Errorf("invalid heatmap options: %w", err)
		}
	}
	if opts.XBuckets <= 0 {
		opts.XBuckets = 10
	}
	if opts.YBuckets <= 0 {
		opts.YBuckets = 10
	}

	type point struct{ x, y float64 }
	var points []point
	for _, record := range records {
		xRaw, xok := pipeline.Lookup(record, opts.XField)
		yRaw, yok := pipeline.Lookup(record, opts.YField)
		if !xok || !yok {
			continue
		}
		x, xnum := toFloat(xRaw)
		y, ynum := toFloat(yRaw)
		if !xnum || !ynum {
			continue
		}
		points = append(points, point{x, y})
	}

	cells := make([][]int, opts.YBuckets)
	for i := range cells {
		cells[i] = make([]int, opts.XBuckets)
	}

	if len(points) == 0 {
		return map[string]interface{}{
			"xBuckets": opts.XBuckets,
			"yBuckets": opts.YBuckets,
			"cells":    cells,
		}, nil
	}

	xMin, xMax := points[0].x, points[0].x
	yMin, yMax := points[0].y, points[0].y
	for _, p := range points[1:] {
		xMin = math.Min(xMin, p.x)
		xMax = math.Max(xMax, p.x)
		yMin = math.Min(yMin, p.y)
		yMax = math.Max(yMax, p.y)
	}

	for _, p := range points {
		cells[bucketIndex(p.y, yMin, yMax, opts.YBuckets)][bucketIndex(p.x, xMin, xMax, opts.XBuckets)]++
	}

	return map[string]interface{}{
		"xBuckets": opts.XBuckets,
		"yBuckets": opts.YBuckets,
		"xRange":   []float64{xMin, xMax},
		"yRange":   []float64{yMin, yMax},
		"cells":    cells,
	}, nil
}

// bucketIndex maps v into [0, buckets); the max value lands in the last bucket.
func bucketIndex(v, min, max float64, buckets int) int {
	if max == min {
		return 0
	}
	idx := int((v - min) / (max - min) * float64(buckets))
	if idx >= buckets {
		idx = buckets - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// inferNumericFields picks numeric columns from the first record, excluding
// the label field, in stable order.
func inferNumericFields(records []pipeline.Record, labelField string) []string {
	if len(records) == 0 {
		return nil
	}
	var fields []string
	for key, value := range records[0] {
		if key == labelField {
			continue
		}
		if _, numeric := toFloat(value); numeric {
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
