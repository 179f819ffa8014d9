package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/plan"
)

func TestSave_RequiresSession(t *testing.T) {
	_, err := Save(context.Background(), setupDB(t), nil, SaveInput{Content: businessTranscript})
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestSave_StoresConversationAndTopics(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	sess := newTestSession(t, database, "saver@example.com")

	out, err := Save(ctx, database, sess, SaveInput{
		Title:   "Planning",
		Content: businessTranscript,
		Result:  sampleResult(),
	})
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, out.Conversation.OwnerID)
	assert.Equal(t, "Planning", out.Conversation.Title)
	require.Len(t, out.Topics, 2)
	assert.Equal(t, "Later section", out.Topics[0].Title)

	got, err := GetConversation(ctx, database, GetConversationInput{ID: out.Conversation.ID, OwnerID: sess.User.ID})
	require.NoError(t, err)
	assert.Equal(t, out.Topics, got.Topics)
}

func TestSave_FreeQuota(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	sess := newTestSession(t, database, "free@example.com")

	for i := range plan.ConversationLimit(plan.Free) {
		_, err := Save(ctx, database, sess, SaveInput{Content: businessTranscript, Result: sampleResult()})
		require.NoError(t, err, "save %d", i+1)
	}

	_, err := Save(ctx, database, sess, SaveInput{Content: businessTranscript, Result: sampleResult()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQuotaExceeded))

	list, err := ListConversations(ctx, database, ListInput{OwnerID: sess.User.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, list.Pagination.Total, "rejected save must not create a conversation")
}

func TestSave_ActiveSubscriptionRaisesQuota(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	sess := newTestSession(t, database, "pro@example.com")

	require.NoError(t, db.UpsertSubscription(ctx, database, &conversation.Subscription{
		UserID: sess.User.ID, Plan: string(plan.Pro), Status: "active",
	}))

	for range 4 {
		_, err := Save(ctx, database, sess, SaveInput{Content: businessTranscript, Result: sampleResult()})
		require.NoError(t, err)
	}
}

func TestSave_TopicFailureLeavesConversation(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	sess := newTestSession(t, database, "orphan@example.com")

	_, err := database.Exec(`CREATE TRIGGER reject_topics BEFORE INSERT ON topics
		BEGIN SELECT RAISE(ABORT, 'topics rejected'); END`)
	require.NoError(t, err)

	_, err = Save(ctx, database, sess, SaveInput{Title: "Half saved", Content: businessTranscript, Result: sampleResult()})
	require.Error(t, err)

	list, err := ListConversations(ctx, database, ListInput{OwnerID: sess.User.ID})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Half saved", list.Items[0].Title)
	assert.Equal(t, 0, list.Items[0].TopicCount)
}
