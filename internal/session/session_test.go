package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
)

var testUser = conversation.User{ID: "01USER", Email: "user@example.com", Name: "User", PasswordHash: "hash", CreatedAt: 1}

func storeContract(t *testing.T, store Store, setNow func(time.Time)) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	setNow(now)

	sess := New(testUser, time.Hour, now)
	require.NotEmpty(t, sess.Token)
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Load(ctx, sess.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testUser.ID, got.User.ID)
	assert.Equal(t, testUser.Email, got.User.Email)
	assert.Equal(t, sess.ExpiresAt.Unix(), got.ExpiresAt.Unix())

	missing, err := store.Load(ctx, "unknown-token")
	require.NoError(t, err)
	assert.Nil(t, missing)

	setNow(now.Add(2 * time.Hour))
	expired, err := store.Load(ctx, sess.Token)
	require.NoError(t, err)
	assert.Nil(t, expired, "expired session loads as absent")

	setNow(now)
	fresh := New(testUser, time.Hour, now)
	require.NoError(t, store.Save(ctx, fresh))
	require.NoError(t, store.Clear(ctx, fresh.Token))
	cleared, err := store.Load(ctx, fresh.Token)
	require.NoError(t, err)
	assert.Nil(t, cleared)

	require.NoError(t, store.Clear(ctx, "never-existed"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	storeContract(t, store, func(now time.Time) { store.now = func() time.Time { return now } })
}

func TestSQLStore(t *testing.T) {
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.InsertUser(context.Background(), database, &testUser))

	store := NewSQLStore(database)
	storeContract(t, store, func(now time.Time) { store.now = func() time.Time { return now } })
}

func TestSQLStore_Purge(t *testing.T) {
	ctx := context.Background()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.InsertUser(ctx, database, &testUser))

	now := time.Unix(1_700_000_000, 0)
	store := NewSQLStore(database)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, New(testUser, -time.Minute, now)))
	require.NoError(t, store.Save(ctx, New(testUser, time.Hour, now)))

	n, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSession_Tokens(t *testing.T) {
	now := time.Now()
	a := New(testUser, time.Hour, now)
	b := New(testUser, time.Hour, now)
	assert.NotEqual(t, a.Token, b.Token)
	assert.False(t, a.Expired(now))
	assert.True(t, a.Expired(now.Add(time.Hour)))

	var nilSession *Session
	assert.Equal(t, "", nilSession.UserID())
	assert.Equal(t, testUser.ID, a.UserID())
}

func TestCookies(t *testing.T) {
	store := NewMemoryStore()
	sess := New(testUser, time.Hour, time.Now())
	require.NoError(t, store.Save(context.Background(), sess))

	rec := httptest.NewRecorder()
	SetCookie(rec, sess, false)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	got, err := FromRequest(context.Background(), store, req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.Token, got.Token)

	anon, err := FromRequest(context.Background(), store, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, anon)

	rec = httptest.NewRecorder()
	ClearCookie(rec)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	sess := New(testUser, time.Hour, time.Now())
	ctx := WithContext(context.Background(), sess)
	assert.Same(t, sess, FromContext(ctx))
}
