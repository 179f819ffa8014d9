package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
)

// CreateConversation stores a transcript for ownerID and returns it with
// its generated ID.
func CreateConversation(ctx context.Context, database *sql.DB, ownerID, title, content string) (*conversation.Conversation, error) {
	if ownerID == "" {
		return nil, errors.NewInvalidRequest("owner is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	c := &conversation.Conversation{
		ID:        id,
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.InsertConversation(ctx, database, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateTopics stores topics for an existing conversation and returns them
// with generated IDs, in the order given.
func CreateTopics(ctx context.Context, database *sql.DB, conversationID string, topics []extract.Topic) ([]conversation.Topic, error) {
	now := time.Now().Unix()
	stored := make([]conversation.Topic, 0, len(topics))
	for _, t := range topics {
		id, err := generateULID()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		stored = append(stored, conversation.Topic{
			ID:             id,
			ConversationID: conversationID,
			Title:          t.Title,
			Summary:        t.Summary,
			PositionStart:  t.PositionStart,
			PositionEnd:    t.PositionEnd,
			CreatedAt:      now,
		})
	}
	if len(stored) == 0 {
		return stored, nil
	}
	if err := db.InsertTopics(ctx, database, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// GetConversationInput contains parameters for GetConversation.
type GetConversationInput struct {
	ID string

	// OwnerID, when set, hides conversations owned by anyone else.
	OwnerID string
}

// GetConversationOutput is a conversation with its topics.
type GetConversationOutput struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Topics       []conversation.Topic       `json:"topics"`
}

// GetConversation fetches a conversation and its topics. A conversation
// owned by someone other than input.OwnerID is reported as not found.
func GetConversation(ctx context.Context, database *sql.DB, input GetConversationInput) (*GetConversationOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	c, err := db.GetConversation(ctx, database, id)
	if err != nil {
		return nil, err
	}
	if input.OwnerID != "" && c.OwnerID != input.OwnerID {
		return nil, errors.NewNotFound("conversation", id)
	}

	topics, err := db.GetTopics(ctx, database, c.ID)
	if err != nil {
		return nil, err
	}
	return &GetConversationOutput{Conversation: c, Topics: topics}, nil
}

// GetTopics returns a conversation's topics in the order they were created.
func GetTopics(ctx context.Context, database *sql.DB, conversationID string) ([]conversation.Topic, error) {
	return db.GetTopics(ctx, database, conversationID)
}

// ListInput contains parameters for ListConversations.
type ListInput struct {
	OwnerID string
	Limit   int // default: 20, max: 100
	Offset  int
}

// ListOutput contains the result of ListConversations.
type ListOutput struct {
	Items      []conversation.Summary `json:"items"`
	Pagination Pagination             `json:"pagination"`
	Sort       string                 `json:"sort"`
}

// ListConversations lists an owner's conversations, newest first.
func ListConversations(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	if input.OwnerID == "" {
		return nil, errors.NewInvalidRequest("owner is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(input.Offset, 0)

	summaries, total, err := db.ListConversationsByOwner(ctx, database, input.OwnerID, limit, offset)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []conversation.Summary{}
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}

// DeleteInput contains parameters for DeleteConversation.
type DeleteInput struct {
	ID      string
	OwnerID string
}

// DeleteOutput contains the result of DeleteConversation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteConversation removes an owner's conversation together with its topics.
func DeleteConversation(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	// Verify ownership (GetConversation hides other owners' conversations)
	out, err := GetConversation(ctx, database, GetConversationInput{ID: input.ID, OwnerID: input.OwnerID})
	if err != nil {
		return nil, err
	}
	if err := db.DeleteConversation(ctx, database, out.Conversation.ID); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: out.Conversation.ID}, nil
}
