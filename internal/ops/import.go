package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
)

// maxImportLine bounds a single archive line; transcripts can be long.
const maxImportLine = 64 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	OwnerID string // required; imported conversations belong to this user
	Path    string // required
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes a line that could not be imported.
type ImportError struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import restores conversations from an Export archive into OwnerID's
// account. Every conversation and topic gets a fresh ID; timestamps and
// topic order are kept. Unreadable lines are skipped and reported.
func Import(ctx context.Context, database *sql.DB, input ImportInput) (*ImportOutput, error) {
	if input.OwnerID == "" {
		return nil, errors.NewInvalidRequest("owner is required")
	}
	if err := ValidatePath(input.Path, PathCheckRead); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.TopicFlowError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("not a zstd archive: %v", err))
	}
	defer zr.Close()

	out := &ImportOutput{Errors: []ImportError{}}
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("import")
		}

		line := scanner.Bytes()
		if lineNum == 1 {
			var header ExportHeader
			if err := json.Unmarshal(line, &header); err != nil || !header.TopicFlowExport {
				return nil, errors.NewInvalidRequest("missing export header")
			}
			continue
		}

		var record ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			out.skip(lineNum, "PARSE_ERROR", fmt.Sprintf("invalid JSON: %v", err))
			continue
		}
		if record.Conversation.Content == "" {
			out.skip(lineNum, "INVALID_RECORD", "missing conversation content")
			continue
		}
		if err := validateTopics(record.Conversation.Content, record.Topics); err != nil {
			out.skip(lineNum, "INVALID_RECORD", err.Error())
			continue
		}

		if err := importRecord(ctx, database, input.OwnerID, record); err != nil {
			out.skip(lineNum, "INSERT_ERROR", err.Error())
			continue
		}
		out.Imported++
	}
	if err := scanner.Err(); err != nil {
		out.skip(lineNum, "READ_ERROR", fmt.Sprintf("failed to read archive: %v", err))
	}
	if lineNum == 0 {
		return nil, errors.NewInvalidRequest("missing export header")
	}

	return out, nil
}

func (out *ImportOutput) skip(line int, code, msg string) {
	out.Skipped++
	out.Errors = append(out.Errors, ImportError{Line: line, Code: code, Message: msg})
}

func importRecord(ctx context.Context, database *sql.DB, ownerID string, record ExportRecord) error {
	id, err := generateULID()
	if err != nil {
		return err
	}
	c := record.Conversation
	c.ID = id
	c.OwnerID = ownerID
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if err := db.InsertConversation(ctx, database, &c); err != nil {
		return err
	}

	topics := make([]conversation.Topic, 0, len(record.Topics))
	for _, t := range record.Topics {
		tid, err := generateULID()
		if err != nil {
			return err
		}
		t.ID = tid
		t.ConversationID = c.ID
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		return nil
	}
	if err := db.InsertTopics(ctx, database, topics); err != nil {
		// Keep a failed line all-or-nothing so a re-import does not duplicate it.
		if derr := db.DeleteConversation(ctx, database, c.ID); derr != nil {
			return fmt.Errorf("%w (cleanup failed: %v)", err, derr)
		}
		return err
	}
	return nil
}

// validateTopics applies the same bounds a saved analysis satisfies.
func validateTopics(content string, topics []conversation.Topic) error {
	if len(topics) > extract.MaxTopics {
		return fmt.Errorf("too many topics: %d > %d", len(topics), extract.MaxTopics)
	}
	n := utf8.RuneCountInString(content)
	for i, t := range topics {
		switch {
		case strings.TrimSpace(t.Title) == "" || strings.TrimSpace(t.Summary) == "":
			return fmt.Errorf("topic %d: title and summary are required", i)
		case utf8.RuneCountInString(t.Title) > extract.MaxTitleChars:
			return fmt.Errorf("topic %d: title exceeds %d characters", i, extract.MaxTitleChars)
		case utf8.RuneCountInString(t.Summary) > extract.MaxSummaryChars:
			return fmt.Errorf("topic %d: summary exceeds %d characters", i, extract.MaxSummaryChars)
		case t.PositionStart < 0 || t.PositionStart > t.PositionEnd || t.PositionEnd > n:
			return fmt.Errorf("topic %d: span [%d,%d] outside content of %d characters", i, t.PositionStart, t.PositionEnd, n)
		}
	}
	return nil
}
