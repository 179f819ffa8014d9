// Package conversation holds the persisted entity types.
package conversation

import "unicode/utf8"

// Conversation is a saved transcript owned by a user.
type Conversation struct {
	// ID is a ULID that uniquely identifies this conversation
	ID string `json:"id"`

	// OwnerID is the ID of the user who saved the conversation
	OwnerID string `json:"owner_id"`

	Title string `json:"title"`

	// Content is the raw transcript exactly as pasted
	Content string `json:"content"`

	// CreatedAt is the Unix timestamp when the conversation was created
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp when the conversation was last updated
	UpdatedAt int64 `json:"updated_at"`
}

// Chars returns the transcript length in characters (runes, not bytes).
func (c *Conversation) Chars() int {
	return utf8.RuneCountInString(c.Content)
}

// Summary is a conversation's metadata without its transcript.
// Used by the dashboard list to avoid loading full content.
type Summary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Chars      int    `json:"chars"`
	TopicCount int    `json:"topic_count"`
	CreatedAt  int64  `json:"created_at"`
}

// Topic is a stored, titled span of a conversation's transcript.
// Topics are written once and never updated.
type Topic struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	PositionStart  int    `json:"position_start"`
	PositionEnd    int    `json:"position_end"`
	CreatedAt      int64  `json:"created_at"`
}

// User is an account that owns conversations.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`

	// PasswordHash is a bcrypt hash; never serialized
	PasswordHash string `json:"-"`

	CreatedAt int64 `json:"created_at"`
}

// Subscription mirrors the payment provider's view of a user's plan.
type Subscription struct {
	UserID            string `json:"user_id"`
	CustomerID        string `json:"customer_id,omitempty"`
	SubscriptionID    string `json:"subscription_id,omitempty"`
	Plan              string `json:"plan"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	UpdatedAt         int64  `json:"updated_at"`
}

// Active reports whether the subscription currently grants its plan.
func (s *Subscription) Active() bool {
	return s != nil && s.Status == "active"
}
