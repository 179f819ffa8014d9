// Package session carries signed-in identity explicitly between requests.
package session

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
)

// CookieName is the cookie carrying the session token.
const CookieName = "topicflow_session"

// Session is a signed-in user. Operations that need identity take one.
type Session struct {
	Token     string
	User      conversation.User
	ExpiresAt time.Time
}

// New creates a session for u valid for ttl from now.
func New(u conversation.User, ttl time.Duration, now time.Time) *Session {
	return &Session{
		Token:     uuid.NewString(),
		User:      u,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// UserID returns the signed-in user's ID, or "" for a nil session.
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// Store persists sessions by token.
// Load returns nil and no error when the token is unknown or expired.
type Store interface {
	Load(ctx context.Context, token string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context, token string) error
}

// SQLStore keeps sessions in the database.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a Store backed by database.
func NewSQLStore(database *sql.DB) *SQLStore {
	return &SQLStore{db: database, now: time.Now}
}

func (s *SQLStore) Load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	row, err := db.GetSession(ctx, s.db, token)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sess := &Session{Token: row.Token, User: row.User, ExpiresAt: time.Unix(row.ExpiresAt, 0)}
	if sess.Expired(s.now()) {
		_ = db.DeleteSession(ctx, s.db, token)
		return nil, nil
	}
	return sess, nil
}

func (s *SQLStore) Save(ctx context.Context, sess *Session) error {
	return db.UpsertSession(ctx, s.db, sess.Token, sess.User.ID, s.now().Unix(), sess.ExpiresAt.Unix())
}

func (s *SQLStore) Clear(ctx context.Context, token string) error {
	return db.DeleteSession(ctx, s.db, token)
}

// Purge removes all expired sessions.
func (s *SQLStore) Purge(ctx context.Context) (int64, error) {
	return db.PurgeExpiredSessions(ctx, s.db, s.now().Unix())
}

// MemoryStore keeps sessions in process memory. Used by tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session), now: time.Now}
}

func (m *MemoryStore) Load(_ context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	if sess.Expired(m.now()) {
		delete(m.sessions, token)
		return nil, nil
	}
	return &sess, nil
}

func (m *MemoryStore) Save(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.Token] = *sess
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// FromRequest loads the session named by the request's cookie.
// A missing cookie yields nil.
func FromRequest(ctx context.Context, store Store, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, nil
	}
	return store.Load(ctx, cookie.Value)
}

// SetCookie writes the session cookie.
func SetCookie(w http.ResponseWriter, s *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type contextKey struct{}

// WithContext returns ctx carrying s.
func WithContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by WithContext, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
