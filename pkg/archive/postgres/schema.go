package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlEntries creates the transcript table with a vector column of the
// configured width. The width is fixed at creation time; changing it needs
// a manual migration.
func ddlEntries(dims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS transcript_entries (
    session_id   TEXT         NOT NULL,
    seq          BIGINT       NOT NULL,
    ref          TEXT         NOT NULL DEFAULT '',
    duration_ns  BIGINT       NOT NULL DEFAULT 0,
    source_lang  TEXT         NOT NULL DEFAULT '',
    target_lang  TEXT         NOT NULL DEFAULT '',
    source_text  TEXT         NOT NULL DEFAULT '',
    target_text  TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    embedding    vector(%d),
    PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_created_at
    ON transcript_entries (created_at);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_fts
    ON transcript_entries USING GIN (to_tsvector('simple', source_text || ' ' || target_text));

CREATE INDEX IF NOT EXISTS idx_transcript_entries_embedding
    ON transcript_entries USING hnsw (embedding vector_cosine_ops);
`, dims)
}

// Migrate creates the archive schema. It is idempotent and runs on every
// [New].
func Migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", dims)
	}
	if _, err := pool.Exec(ctx, ddlEntries(dims)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
