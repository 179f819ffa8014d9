package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
)

// ExportSchemaVersion is written to every export header.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	OwnerID string // required
	Path    string // optional, default: <Dir>/<owner>-<timestamp>.jsonl.zst
	Dir     string // directory for the default path
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of an export archive.
type ExportHeader struct {
	TopicFlowExport bool   `json:"_topicflow_export"`
	SchemaVersion   string `json:"schema_version"`
	ExportedAt      int64  `json:"exported_at"`
}

// ExportRecord is one conversation line of an export archive.
type ExportRecord struct {
	Conversation conversation.Conversation `json:"conversation"`
	Topics       []conversation.Topic      `json:"topics"`
}

// Export writes an owner's conversations and topics to a zstd-compressed
// JSONL archive. The archive is written to a temp file and renamed into
// place, so an existing file at Path survives a failed export.
func Export(ctx context.Context, database *sql.DB, input ExportInput) (*ExportOutput, error) {
	if input.OwnerID == "" {
		return nil, errors.NewInvalidRequest("owner is required")
	}

	now := time.Now()
	exportedAt := now.Unix()

	exportPath := input.Path
	if exportPath == "" {
		if input.Dir == "" {
			return nil, errors.NewInvalidRequest("path is required")
		}
		exportPath = filepath.Join(input.Dir, fmt.Sprintf("%s-%s%s",
			SanitizeForFilename(input.OwnerID), now.Format("2006-01-02T150405"), ExportExt))
	}
	if err := ValidatePath(exportPath, PathCheckWrite); err != nil {
		return nil, err
	}

	// Conversations are read in full before topics are fetched, so a pool
	// limited to one connection does not deadlock on the open cursor.
	records, err := loadExportRecords(ctx, database, input.OwnerID)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	zw, err := zstd.NewWriter(file)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	enc := json.NewEncoder(zw)

	if err := enc.Encode(ExportHeader{
		TopicFlowExport: true,
		SchemaVersion:   ExportSchemaVersion,
		ExportedAt:      exportedAt,
	}); err != nil {
		zw.Close()
		return nil, errors.NewInternal(err)
	}

	for _, record := range records {
		select {
		case <-ctx.Done():
			zw.Close()
			return nil, errors.NewCancelled("export")
		default:
		}
		if err := enc.Encode(record); err != nil {
			zw.Close()
			return nil, errors.NewInternal(err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to finish compression: %w", err))
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      len(records),
		ExportedAt: exportedAt,
	}, nil
}

func loadExportRecords(ctx context.Context, database *sql.DB, ownerID string) ([]ExportRecord, error) {
	rows, err := db.StreamForExport(ctx, database, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ExportRecord
	for rows.Next() {
		c, err := db.ScanConversationFromRows(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		records = append(records, ExportRecord{Conversation: *c})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	rows.Close()

	for i := range records {
		topics, err := db.GetTopics(ctx, database, records[i].Conversation.ID)
		if err != nil {
			return nil, err
		}
		records[i].Topics = topics
	}
	return records, nil
}
