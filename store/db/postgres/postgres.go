package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/internal/profile"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile

	// Set when the pgvector extension is installed; vector search is
	// refused cleanly when it is not.
	vectorReady bool
}

// NewDB opens the PostgreSQL database at the profile's connection
// string and applies the schema.
func NewDB(ctx context.Context, instanceProfile *profile.Profile) (*DB, error) {
	if instanceProfile.DurableStoreConn == "" {
		return nil, errors.New("postgres dsn required")
	}

	postgresDB, err := sql.Open("postgres", instanceProfile.DurableStoreConn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", instanceProfile.DurableStoreConn)
	}
	postgresDB.SetMaxOpenConns(10)
	postgresDB.SetMaxIdleConns(5)
	postgresDB.SetConnMaxLifetime(30 * time.Minute)

	if err := postgresDB.PingContext(ctx); err != nil {
		_ = postgresDB.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	driver := &DB{db: postgresDB, profile: instanceProfile}
	if err := driver.migrate(ctx); err != nil {
		_ = postgresDB.Close()
		return nil, errors.Wrap(err, "migrate postgres schema")
	}
	return driver, nil
}

func (d *DB) migrate(ctx context.Context) error {
	// pgvector is optional; without it the chunk table has no embedding
	// column and vector search reports unsupported.
	if _, err := d.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err == nil {
		d.vectorReady = true
	}

	schema := `
CREATE TABLE IF NOT EXISTS conversation (
	id BIGSERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	owner TEXT NOT NULL,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_conversation_owner ON conversation (owner);

CREATE TABLE IF NOT EXISTS message (
	id BIGSERIAL PRIMARY KEY,
	conversation_uid TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_ts BIGINT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_message_conversation ON message (conversation_uid, created_ts DESC, id DESC);

CREATE TABLE IF NOT EXISTS chunk (
	id BIGSERIAL PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	content_tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
);
CREATE INDEX IF NOT EXISTS idx_chunk_tsv ON chunk USING GIN (content_tsv);
`
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	if d.vectorReady {
		vectorSchema := fmt.Sprintf(`
ALTER TABLE chunk ADD COLUMN IF NOT EXISTS embedding VECTOR(%d);
`, d.profile.EmbedDimensions)
		if _, err := d.db.ExecContext(ctx, vectorSchema); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) GetDB() any { return d.db }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// placeholders returns "$1, $2, ..., $n".
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(list, ", ")
}
