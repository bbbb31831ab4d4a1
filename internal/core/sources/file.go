package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/h2non/filetype"

	"github.com/opsai-platform/analytics-backend-go/internal/core/pipeline"
	"github.com/opsai-platform/analytics-backend-go/internal/database/repositories"
)

// FileConfig configures a file-metadata source.
type FileConfig struct {
	FileID string `json:"fileId"`
}

// FileAdapter returns stored file metadata plus previously extracted
// structured data. It never re-processes the underlying file.
type FileAdapter struct {
	files repositories.FileRepository
}

// NewFileAdapter creates a file source adapter.
func NewFileAdapter(files repositories.FileRepository) *FileAdapter {
	return &FileAdapter{files: files}
}

func (a *FileAdapter) Type() string { return TypeFile }

func (a *FileAdapter) Fetch(ctx context.Context, config json.RawMessage, _ map[string]interface{}) ([]pipeline.Record, error) {
	var cfg FileConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid file source config: %w", err)
	}
	if cfg.FileID == "" {
		return nil, fmt.Errorf("file source needs a fileId")
	}

	file, err := a.files.GetByID(ctx, cfg.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load file metadata: %w", err)
	}

	contentType := file.ContentType.String
	if contentType == "" && file.StoragePath.Valid {
		contentType = sniffContentType(file.StoragePath.String)
	}

	record := pipeline.Record{
		"fileId":      file.ID,
		"name":        file.Name,
		"contentType": contentType,
		"sizeBytes":   file.SizeBytes,
		"uploadedAt":  file.UploadedAt.Format(time.RFC3339),
	}

	if len(file.ExtractedData) > 0 {
		var extracted interface{}
		if err := json.Unmarshal(file.ExtractedData, &extracted); err == nil {
			record["extractedData"] = extracted
		}
	}

	// Extracted rows, when present as an array, are surfaced as the record
	// collection itself so transformations can operate on them.
	if rows, ok := record["extractedData"].([]interface{}); ok {
		records := make([]pipeline.Record, 0, len(rows))
		for _, row := range rows {
			if m, ok := row.(map[string]interface{}); ok {
				records = append(records, m)
			}
		}
		if len(records) > 0 {
			return records, nil
		}
	}

	return []pipeline.Record{record}, nil
}

// sniffContentType reads the file header to detect a MIME type; best effort.
func sniffContentType(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil || n == 0 {
		return ""
	}

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}
