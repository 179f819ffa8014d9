package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
)

// InsertUser stores a new user. Emails are stored lowercased.
// A duplicate email returns ErrUniqueConstraint.
func InsertUser(ctx context.Context, db *sql.DB, u *conversation.User) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, strings.ToLower(u.Email), toNullString(u.Name), u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetUserByEmail looks a user up by email, case-insensitively.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*conversation.User, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("user", email)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

// GetUserByID looks a user up by ULID.
func GetUserByID(ctx context.Context, db *sql.DB, id string) (*conversation.User, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM users WHERE id = ?
	`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("user", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return u, nil
}

func scanUser(row scanner) (*conversation.User, error) {
	var u conversation.User
	var name sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &name, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Name = name.String
	return &u, nil
}

// SessionRow is a stored session joined with its user.
type SessionRow struct {
	Token     string
	User      conversation.User
	CreatedAt int64
	ExpiresAt int64
}

// UpsertSession stores or refreshes a session token.
func UpsertSession(ctx context.Context, db *sql.DB, token, userID string, createdAt, expiresAt int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET expires_at = excluded.expires_at
	`, token, userID, createdAt, expiresAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetSession returns the session for token together with its user.
// Expiry is not checked here.
func GetSession(ctx context.Context, db *sql.DB, token string) (*SessionRow, error) {
	row := db.QueryRowContext(ctx, `
		SELECT s.token, s.created_at, s.expires_at,
			u.id, u.email, u.name, u.password_hash, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ?
	`, token)

	var s SessionRow
	var name sql.NullString
	err := row.Scan(&s.Token, &s.CreatedAt, &s.ExpiresAt,
		&s.User.ID, &s.User.Email, &name, &s.User.PasswordHash, &s.User.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session", "token")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	s.User.Name = name.String
	return &s, nil
}

// DeleteSession removes a session. Deleting a missing token is not an error.
func DeleteSession(ctx context.Context, db *sql.DB, token string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// PurgeExpiredSessions deletes sessions that expired before now and
// returns how many were removed.
func PurgeExpiredSessions(ctx context.Context, db *sql.DB, now int64) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// UpsertSubscription writes the mirrored subscription for s.UserID.
func UpsertSubscription(ctx context.Context, db *sql.DB, s *conversation.Subscription) error {
	var periodEnd sql.NullInt64
	if s.CurrentPeriodEnd > 0 {
		periodEnd = sql.NullInt64{Int64: s.CurrentPeriodEnd, Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, customer_id, subscription_id, plan, status,
			current_period_end, cancel_at_period_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			customer_id = COALESCE(excluded.customer_id, subscriptions.customer_id),
			subscription_id = COALESCE(excluded.subscription_id, subscriptions.subscription_id),
			plan = excluded.plan,
			status = excluded.status,
			current_period_end = COALESCE(excluded.current_period_end, subscriptions.current_period_end),
			cancel_at_period_end = excluded.cancel_at_period_end,
			updated_at = excluded.updated_at
	`, s.UserID, toNullString(s.CustomerID), toNullString(s.SubscriptionID), s.Plan, s.Status,
		periodEnd, s.CancelAtPeriodEnd, s.UpdatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetSubscription returns the subscription mirrored for a user.
func GetSubscription(ctx context.Context, db *sql.DB, userID string) (*conversation.Subscription, error) {
	return getSubscriptionWhere(ctx, db, "user_id = ?", userID)
}

// GetSubscriptionByStripeID finds a subscription by the provider's subscription id.
func GetSubscriptionByStripeID(ctx context.Context, db *sql.DB, subscriptionID string) (*conversation.Subscription, error) {
	return getSubscriptionWhere(ctx, db, "subscription_id = ?", subscriptionID)
}

// GetSubscriptionByCustomer finds a subscription by the provider's customer id.
func GetSubscriptionByCustomer(ctx context.Context, db *sql.DB, customerID string) (*conversation.Subscription, error) {
	return getSubscriptionWhere(ctx, db, "customer_id = ?", customerID)
}

func getSubscriptionWhere(ctx context.Context, db *sql.DB, where string, arg string) (*conversation.Subscription, error) {
	row := db.QueryRowContext(ctx, `
		SELECT user_id, customer_id, subscription_id, plan, status,
			current_period_end, cancel_at_period_end, updated_at
		FROM subscriptions
		WHERE `+where+`
		ORDER BY updated_at DESC
		LIMIT 1
	`, arg)

	var s conversation.Subscription
	var customerID, subscriptionID sql.NullString
	var periodEnd sql.NullInt64
	err := row.Scan(&s.UserID, &customerID, &subscriptionID, &s.Plan, &s.Status,
		&periodEnd, &s.CancelAtPeriodEnd, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("subscription", arg)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	s.CustomerID = customerID.String
	s.SubscriptionID = subscriptionID.String
	s.CurrentPeriodEnd = periodEnd.Int64
	return &s, nil
}
