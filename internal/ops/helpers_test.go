package ops

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/session"
)

// businessTranscript yields a "Business Discussion" topic from the heuristic.
var businessTranscript = "User: " + strings.Repeat("x", 150) + "\nAI: " + "business strategy " + strings.Repeat("y", 150)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// newTestSession creates a user and a session for it without going through bcrypt.
func newTestSession(t *testing.T, database *sql.DB, email string) *session.Session {
	t.Helper()
	id, err := generateULID()
	require.NoError(t, err)
	u := conversation.User{ID: id, Email: email, Name: "Test", PasswordHash: "x", CreatedAt: time.Now().Unix()}
	require.NoError(t, db.InsertUser(context.Background(), database, &u))
	return session.New(u, time.Hour, time.Now())
}

// heuristicExtractor always returns the fallback result.
type heuristicExtractor struct{}

func (heuristicExtractor) Extract(_ context.Context, transcript string) extract.Outcome {
	return extract.Outcome{
		Result: extract.Fallback(transcript),
		Source: extract.SourceHeuristic,
		Reason: extract.ErrNoCredentials,
	}
}

// fixedExtractor returns a canned model result.
type fixedExtractor struct {
	result extract.Result
}

func (f fixedExtractor) Extract(context.Context, string) extract.Outcome {
	return extract.Outcome{Result: f.result, Source: extract.SourceModel}
}

func sampleResult() extract.Result {
	return extract.Result{
		Topics: []extract.Topic{
			{Title: "Later section", Summary: "Appears first in the list", PositionStart: 120, PositionEnd: 300},
			{Title: "Opening", Summary: "The start of the conversation", PositionStart: 0, PositionEnd: 120},
		},
		ConversationSummary: "Two topics.",
	}
}
