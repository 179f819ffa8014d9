package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/plan"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/session"
)

// SaveInput contains parameters for the Save operation.
type SaveInput struct {
	Title   string
	Content string
	Result  extract.Result
}

// SaveOutput contains the stored conversation and topics.
type SaveOutput struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Topics       []conversation.Topic       `json:"topics"`
}

// Save persists an analyzed transcript for the session's user.
//
// The quota is checked first, then the conversation is created, then its
// topics. The two writes are not one transaction: if the topic write fails
// the conversation remains without topics and the error is returned.
func Save(ctx context.Context, database *sql.DB, sess *session.Session, input SaveInput) (*SaveOutput, error) {
	if sess == nil {
		return nil, errors.NewUnauthorized("Sign in to save conversations")
	}

	usage, err := GetUsage(ctx, database, sess.User.ID, time.Now())
	if err != nil {
		return nil, err
	}
	if !plan.CanSave(usage.Plan, usage.Used) {
		return nil, errors.NewQuotaExceeded(string(usage.Plan), usage.Limit)
	}

	c, err := CreateConversation(ctx, database, sess.User.ID, input.Title, input.Content)
	if err != nil {
		return nil, err
	}
	topics, err := CreateTopics(ctx, database, c.ID, input.Result.Topics)
	if err != nil {
		return nil, err
	}

	return &SaveOutput{Conversation: c, Topics: topics}, nil
}
