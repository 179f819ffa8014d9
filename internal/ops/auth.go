package ops

import (
	"context"
	"database/sql"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/db"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/session"
)

// MinPasswordChars is the shortest password accepted at sign-up.
const MinPasswordChars = 6

// DefaultSessionTTL applies when the caller passes a non-positive TTL.
const DefaultSessionTTL = 30 * 24 * time.Hour

const invalidCredentials = "Invalid email or password"

// SignUpInput contains parameters for SignUp.
type SignUpInput struct {
	Email    string
	Name     string
	Password string
}

// SignInInput contains parameters for SignIn.
type SignInInput struct {
	Email    string
	Password string
}

// SignUp creates a user and signs them in.
func SignUp(ctx context.Context, database *sql.DB, store session.Store, ttl time.Duration, input SignUpInput) (*session.Session, error) {
	email := strings.TrimSpace(input.Email)
	name := strings.TrimSpace(input.Name)
	if email == "" || name == "" || input.Password == "" {
		return nil, errors.NewInvalidRequest("Email, name, and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.NewInvalidRequest("Invalid email address")
	}
	if len([]rune(input.Password)) < MinPasswordChars {
		return nil, errors.NewInvalidRequest("Password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	u := &conversation.User{
		ID:           id,
		Email:        strings.ToLower(email),
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().Unix(),
	}
	if err := db.InsertUser(ctx, database, u); err != nil {
		if err == db.ErrUniqueConstraint {
			return nil, errors.NewEmailExists(email)
		}
		return nil, err
	}

	return startSession(ctx, store, *u, ttl)
}

// SignIn checks credentials and starts a session. Unknown emails and wrong
// passwords produce the same error.
func SignIn(ctx context.Context, database *sql.DB, store session.Store, ttl time.Duration, input SignInInput) (*session.Session, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return nil, errors.NewInvalidRequest("Email and password are required")
	}

	u, err := db.GetUserByEmail(ctx, database, email)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewUnauthorized(invalidCredentials)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(input.Password)); err != nil {
		return nil, errors.NewUnauthorized(invalidCredentials)
	}

	return startSession(ctx, store, *u, ttl)
}

// SignOut ends a session. Signing out twice is not an error.
func SignOut(ctx context.Context, store session.Store, sess *session.Session) error {
	if sess == nil {
		return nil
	}
	return store.Clear(ctx, sess.Token)
}

func startSession(ctx context.Context, store session.Store, u conversation.User, ttl time.Duration) (*session.Session, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	sess := session.New(u, ttl, time.Now())
	if err := store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
