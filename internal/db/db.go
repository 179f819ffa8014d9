package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// FileName is the database file created inside the base directory.
const FileName = "topicflow.db"

// Init initializes the SQLite database at baseDir/topicflow.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.topicflow.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	exportsDir := filepath.Join(baseDir, "exports")
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Pragmas in the DSN apply to every pooled connection
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: accounts, conversations, topics
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS users (
		  id            TEXT PRIMARY KEY,
		  email         TEXT NOT NULL UNIQUE,
		  name          TEXT,
		  password_hash TEXT NOT NULL,
		  created_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
		  token      TEXT PRIMARY KEY,
		  user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		  created_at INTEGER NOT NULL,
		  expires_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user
		ON sessions(user_id);

		CREATE TABLE IF NOT EXISTS conversations (
		  id            TEXT PRIMARY KEY,
		  owner_id      TEXT NOT NULL,
		  title         TEXT NOT NULL,
		  content       TEXT NOT NULL,
		  content_chars INTEGER NOT NULL,
		  created_at    INTEGER NOT NULL,
		  updated_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner_created
		ON conversations(owner_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS topics (
		  id              TEXT PRIMARY KEY,
		  conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		  seq             INTEGER NOT NULL,
		  title           TEXT NOT NULL,
		  summary         TEXT NOT NULL,
		  position_start  INTEGER NOT NULL,
		  position_end    INTEGER NOT NULL,
		  created_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_topics_conversation_seq
		ON topics(conversation_id, seq);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: subscription mirror
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS subscriptions (
		  user_id              TEXT PRIMARY KEY,
		  customer_id          TEXT,
		  subscription_id      TEXT,
		  plan                 TEXT NOT NULL,
		  status               TEXT NOT NULL,
		  current_period_end   INTEGER,
		  cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
		  updated_at           INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_subscriptions_customer
		ON subscriptions(customer_id)
		WHERE customer_id IS NOT NULL;

		CREATE INDEX IF NOT EXISTS idx_subscriptions_subscription
		ON subscriptions(subscription_id)
		WHERE subscription_id IS NOT NULL;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
