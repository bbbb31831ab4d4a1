package visualization

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
)

func monthlyRevenue() []pipeline.Record {
	return []pipeline.Record{
		{"month": "Jan", "revenue": 100.0, "expenses": 80.0},
		{"month": "Feb", "revenue": 150.0, "expenses": 90.0},
		{"month": "Mar", "revenue": 120.0, "expenses": 85.0},
	}
}

func TestGenerate_LineChart(t *testing.T) {
	cfg := ChartConfig{
		ID:         "c1",
		Type:       ChartLine,
		DataSource: "s1",
		Options:    json.RawMessage(`{"labelField":"month","series":["revenue","expenses"]}`),
	}

	chart, err := Generate(monthlyRevenue(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"Jan", "Feb", "Mar"}, chart["labels"])

	datasets := chart["datasets"].([]Dataset)
	require.Len(t, datasets, 2)
	assert.Equal(t, "revenue", datasets[0].Label)
	assert.Equal(t, []interface{}{100.0, 150.0, 120.0}, datasets[0].Data)
	assert.Equal(t, "hsl(0, 70%, 50%)", datasets[0].Color)
	assert.Equal(t, "hsl(180, 70%, 50%)", datasets[1].Color)
}

func TestGenerate_BarChartInfersNumericSeries(t *testing.T) {
	cfg := ChartConfig{
		ID:         "c1",
		Type:       ChartBar,
		DataSource: "s1",
		Options:    json.RawMessage(`{"labelField":"month"}`),
	}

	chart, err := Generate(monthlyRevenue(), cfg)
	require.NoError(t, err)

	datasets := chart["datasets"].([]Dataset)
	require.Len(t, datasets, 2)
	assert.Equal(t, "expenses", datasets[0].Label)
	assert.Equal(t, "revenue", datasets[1].Label)
}

func TestGenerate_PieChartColorPerSlice(t *testing.T) {
	records := []pipeline.Record{
		{"region": "eu", "share": 60.0},
		{"region": "us", "share": 30.0},
		{"region": "apac", "share": 10.0},
	}
	cfg := ChartConfig{
		ID:         "c1",
		Type:       ChartPie,
		DataSource: "s1",
		Options:    json.RawMessage(`{"labelField":"region","valueField":"share"}`),
	}

	chart, err := Generate(records, cfg)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"eu", "us", "apac"}, chart["labels"])

	datasets := chart["datasets"].([]map[string]interface{})
	require.Len(t, datasets, 1)
	colors := datasets[0]["backgroundColor"].([]string)
	require.Len(t, colors, 3)
	assert.Equal(t, "hsl(0, 70%, 50%)", colors[0])
	assert.Equal(t, "hsl(120, 70%, 50%)", colors[1])
	assert.Equal(t, "hsl(240, 70%, 50%)", colors[2])
}

func TestGenerate_TableDefaultsColumnsToFirstRecordKeys(t *testing.T) {
	cfg := ChartConfig{ID: "c1", Type: ChartTable, DataSource: "s1"}

	chart, err := Generate(monthlyRevenue(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"expenses", "month", "revenue"}, chart["columns"])
	rows := chart["rows"].([][]interface{})
	require.Len(t, rows, 3)
	assert.Equal(t, []interface{}{80.0, "Jan", 100.0}, rows[0])
}

func TestGenerate_GaugePercentage(t *testing.T) {
	records := []pipeline.Record{{"cpu": 75.0}}
	cfg := ChartConfig{
		ID:         "c1",
		Type:       ChartGauge,
		DataSource: "s1",
		Options:    json.RawMessage(`{"valueField":"cpu","min":50,"max":100}`),
	}

	chart, err := Generate(records, cfg)
	require.NoError(t, err)

	assert.Equal(t, 75.0, chart["value"])
	assert.Equal(t, 50.0, chart["percentage"])
}

func TestGenerate_GaugeClampsOutOfRange(t *testing.T) {
	records := []pipeline.Record{{"cpu": 150.0}}
	cfg := ChartConfig{
		ID:         "c1",
		Type:       ChartGauge,
		DataSource: "s1",
		Options:    json.RawMessage(`{"valueField":"cpu","min":0,"max":100}`),
	}

	chart, err := Generate(records, cfg)
	require.NoError(t, err)
	assert.Equal(t, 100.0, chart["percentage"])
}

func TestGenerate_HeatmapBucketCounts(t *testing.T) {
	records := []pipeline.Record{
		{"x": 0.0, "y": 0.0},
		{"x": 0.1, "y": 0.1},
		{"x": 10.0, "y": 10.0},
		{"x": 5.0, "y": 5.0},
		{"x": "bad", "y": 1.0},
	}
	cfg := ChartConfig{
		ID:         "c1",
		Type:       ChartHeatmap,
		DataSource: "s1",
		Options:    json.RawMessage(`{"xField":"x","yField":"y","xBuckets":2,"yBuckets":2}`),
	}

	chart, err := Generate(records, cfg)
	require.NoError(t, err)

	cells := chart["cells"].([][]int)
	require.Len(t, cells, 2)
	assert.Equal(t, 2, cells[0][0])
	assert.Equal(t, 2, cells[1][1])

	total := 0
	for _, row := range cells {
		for _, n := range row {
			total += n
		}
	}
	assert.Equal(t, 4, total)
}

func TestGenerate_UnknownChartType(t *testing.T) {
	_, err := Generate(nil, ChartConfig{ID: "c1", Type: "sankey", DataSource: "s1"})
	assert.Error(t, err)
}
