package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/crewmind/crewmind/internal/profile"
)

// SQLite is supported on a best-effort basis for development and
// single-node deployments. Basic conversation CRUD and a LIKE-based
// lexical chunk search work; vector search does not, and the driver
// returns a clear error for it rather than a partial implementation.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database at the profile's connection string
// and applies the schema.
func NewDB(ctx context.Context, instanceProfile *profile.Profile) (*DB, error) {
	if instanceProfile.DurableStoreConn == "" {
		return nil, errors.New("sqlite dsn required")
	}

	// WAL journal mode with a generous busy timeout keeps the single
	// writer usable; a lone pooled connection is optimal for WAL.
	sqliteDB, err := sql.Open("sqlite", instanceProfile.DurableStoreConn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", instanceProfile.DurableStoreConn)
	}
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := &DB{db: sqliteDB, profile: instanceProfile}
	if err := driver.migrate(ctx); err != nil {
		_ = sqliteDB.Close()
		return nil, errors.Wrap(err, "migrate sqlite schema")
	}
	return driver, nil
}

func (d *DB) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS conversation (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL UNIQUE,
	owner TEXT NOT NULL,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_conversation_owner ON conversation (owner);

CREATE TABLE IF NOT EXISTS message (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_uid TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_ts BIGINT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_message_conversation ON message (conversation_uid, created_ts);

CREATE TABLE IF NOT EXISTS chunk (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
`
	_, err := d.db.ExecContext(ctx, schema)
	return err
}

func (d *DB) GetDB() any { return d.db }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
