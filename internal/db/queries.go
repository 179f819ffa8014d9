package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.TopicFlowError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertConversation stores a new conversation.
func InsertConversation(ctx context.Context, db *sql.DB, c *conversation.Conversation) error {
	query := `
		INSERT INTO conversations (id, owner_id, title, content, content_chars, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		c.ID, c.OwnerID, c.Title, c.Content, c.Chars(), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetConversation retrieves a conversation by its ULID.
func GetConversation(ctx context.Context, db *sql.DB, id string) (*conversation.Conversation, error) {
	query := `
		SELECT id, owner_id, title, content, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`
	c, err := scanConversation(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("conversation", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// ListConversationsByOwner returns summaries of an owner's conversations,
// newest first, with the total count for pagination.
func ListConversationsByOwner(ctx context.Context, db *sql.DB, ownerID string, limit, offset int) ([]conversation.Summary, int, error) {
	var total int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE owner_id = ?", ownerID,
	).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT c.id, c.title, c.content_chars, c.created_at,
			(SELECT COUNT(*) FROM topics t WHERE t.conversation_id = c.id)
		FROM conversations c
		WHERE c.owner_id = ?
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var summaries []conversation.Summary
	for rows.Next() {
		var s conversation.Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.Chars, &s.CreatedAt, &s.TopicCount); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return summaries, total, nil
}

// CountConversationsSince counts an owner's conversations created at or after since.
func CountConversationsSince(ctx context.Context, db *sql.DB, ownerID string, since int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE owner_id = ? AND created_at >= ?",
		ownerID, since,
	).Scan(&n)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// DeleteConversation removes a conversation; its topics go with it.
func DeleteConversation(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("conversation", id)
	}
	return nil
}

// InsertTopics stores a conversation's topics in one transaction.
// Slice order is preserved as the read-back order.
func InsertTopics(ctx context.Context, db *sql.DB, topics []conversation.Topic) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO topics (id, conversation_id, seq, title, summary, position_start, position_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for i, t := range topics {
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.ConversationID, i, t.Title, t.Summary, t.PositionStart, t.PositionEnd, t.CreatedAt,
		); err != nil {
			if isUniqueConstraintError(err) {
				return ErrUniqueConstraint
			}
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetTopics returns a conversation's topics in insertion order.
// A conversation without topics yields an empty slice, not an error.
func GetTopics(ctx context.Context, db *sql.DB, conversationID string) ([]conversation.Topic, error) {
	query := `
		SELECT id, conversation_id, title, summary, position_start, position_end, created_at
		FROM topics
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`
	rows, err := db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	topics := []conversation.Topic{}
	for rows.Next() {
		var t conversation.Topic
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Title, &t.Summary,
			&t.PositionStart, &t.PositionEnd, &t.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return topics, nil
}

// StreamForExport returns rows of an owner's conversations, oldest first.
// Caller must close the rows; use ScanConversationFromRows to read them.
func StreamForExport(ctx context.Context, db *sql.DB, ownerID string) (*sql.Rows, error) {
	query := `
		SELECT id, owner_id, title, content, created_at, updated_at
		FROM conversations
		WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// ScanConversationFromRows scans the current row from StreamForExport.
func ScanConversationFromRows(rows *sql.Rows) (*conversation.Conversation, error) {
	return scanConversation(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*conversation.Conversation, error) {
	var c conversation.Conversation
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// toNullString converts an empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
