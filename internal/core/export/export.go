package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
	"github.com/opsai-platform/analytics-backend-go/internal/core/query"
	apperrors "github.com/opsai-platform/analytics-backend-go/pkg/errors"
)

// Export format constants
const (
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatExcel = "excel"
	FormatPDF   = "pdf"
)

var contentTypes = map[string]string{
	FormatCSV:   "text/csv",
	FormatJSON:  "application/json",
	FormatExcel: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatPDF:   "application/pdf",
}

// Payload is a serialized export ready for download.
type Payload struct {
	Data        []byte `json:"-"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	// Encoding is "gzip" when the payload body is compressed.
	Encoding string `json:"encoding,omitempty"`
}

// Converter produces binary formats from a result set. Excel and PDF
// rendering live behind this boundary.
type Converter interface {
	ToExcel(ctx context.Context, result *query.ResultSet) ([]byte, error)
	ToPDF(ctx context.Context, result *query.ResultSet) ([]byte, error)
}

// QueryRunner executes a stored query by id, scoped to the owning tenant.
type QueryRunner interface {
	Execute(ctx context.Context, tenantID, queryID string, params map[string]interface{}) (*query.ResultSet, error)
}

// Engine serializes query results into downloadable payloads.
type Engine struct {
	runner    QueryRunner
	converter Converter
	compress  bool
	logger    *logrus.Logger
}

// NewEngine creates an export engine. converter may be nil; excel and pdf
// exports then fail with ErrUnsupportedFormat.
func NewEngine(runner QueryRunner, converter Converter, compress bool, logger *logrus.Logger) *Engine {
	return &Engine{runner: runner, converter: converter, compress: compress, logger: logger}
}

// ExportData executes the query, then serializes the full result set. Export
// failures are hard failures; there is no partial export.
func (e *Engine) ExportData(ctx context.Context, tenantID, queryID, format string, params map[string]interface{}) (*Payload, error) {
	contentType, ok := contentTypes[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format)
	}

	result, err := e.runner.Execute(ctx, tenantID, queryID, params)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case FormatCSV:
		data, err = MarshalCSV(result.Records)
	case FormatJSON:
		data, err = json.MarshalIndent(result.Records, "", "  ")
	case FormatExcel:
		if e.converter == nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format)
		}
		data, err = e.converter.ToExcel(ctx, result)
	case FormatPDF:
		if e.converter == nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format)
		}
		data, err = e.converter.ToPDF(ctx, result)
	}
	if err != nil {
		return nil, fmt.Errorf("export serialization failed: %w", err)
	}

	payload := &Payload{
		Data:        data,
		Filename:    filename(result.Name, format),
		ContentType: contentType,
	}

	// Binary formats are already compressed containers.
	if e.compress && (format == FormatCSV || format == FormatJSON) {
		compressed, err := gzipBytes(data)
		if err != nil {
			return nil, fmt.Errorf("export compression failed: %w", err)
		}
		payload.Data = compressed
		payload.Encoding = "gzip"
	}

	e.logger.WithFields(logrus.Fields{
		"query_id": queryID,
		"format":   format,
		"bytes":    len(payload.Data),
	}).Debug("Export generated")
	return payload, nil
}

// MarshalCSV writes a header row of the union of record keys in sorted
// order, then one quoted row per record.
func MarshalCSV(records []pipeline.Record) ([]byte, error) {
	columns := columnUnion(records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, record := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = cellValue(record[col])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func columnUnion(records []pipeline.Record) []string {
	seen := map[string]bool{}
	var columns []string
	for _, record := range records {
		for key := range record {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func cellValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return trimFloat(value)
	default:
		if b, err := json.Marshal(value); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", value)
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func filename(queryName, format string) string {
	ext := format
	if format == FormatExcel {
		ext = "xlsx"
	}
	if queryName == "" {
		queryName = "export"
	}
	return fmt.Sprintf("%s_%s.%s", queryName, time.Now().UTC().Format("20060102_150405"), ext)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
