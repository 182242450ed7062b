// Package postgres stores transcript entries in PostgreSQL. Full-text search
// uses a GIN index over both languages; similarity search uses a pgvector
// HNSW index with cosine distance.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/livescribe/pkg/archive"
)

var _ archive.Store = (*Store)(nil)

// Store implements archive.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, registers the pgvector types on every connection
// and runs [Migrate]. dims must match the embeddings model in use.
func New(ctx context.Context, dsn string, dims int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping implements archive.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append implements archive.Store.
func (s *Store) Append(ctx context.Context, e archive.Entry) error {
	const q = `
		INSERT INTO transcript_entries
		    (session_id, seq, ref, duration_ns, source_lang, target_lang,
		     source_text, target_text, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, seq) DO UPDATE SET
		    ref         = EXCLUDED.ref,
		    duration_ns = EXCLUDED.duration_ns,
		    source_lang = EXCLUDED.source_lang,
		    target_lang = EXCLUDED.target_lang,
		    source_text = EXCLUDED.source_text,
		    target_text = EXCLUDED.target_text,
		    created_at  = EXCLUDED.created_at,
		    embedding   = EXCLUDED.embedding`

	var vec *pgvector.Vector
	if len(e.Embedding) > 0 {
		v := pgvector.NewVector(e.Embedding)
		vec = &v
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, q,
		e.SessionID,
		int64(e.Seq),
		e.Ref,
		e.Duration.Nanoseconds(),
		e.SourceLang,
		e.TargetLang,
		e.SourceText,
		e.TargetText,
		createdAt,
		vec,
	)
	if err != nil {
		return fmt.Errorf("archive postgres: append: %w", err)
	}
	return nil
}

const selectColumns = `session_id, seq, ref, duration_ns, source_lang, target_lang,
		       source_text, target_text, created_at`

// BySession implements archive.Store.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]archive.Entry, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+selectColumns+" FROM transcript_entries WHERE session_id = $1 ORDER BY seq",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: by session: %w", err)
	}
	return collectEntries(rows)
}

// Search implements archive.Store. The query goes through
// plainto_tsquery, so no operator syntax is needed.
func (s *Store) Search(ctx context.Context, query string, opts archive.SearchOpts) ([]archive.Entry, error) {
	args := []any{query}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('simple', source_text || ' ' || target_text) @@ plainto_tsquery('simple', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "created_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "created_at < "+next(opts.Before))
	}

	q := "SELECT " + selectColumns + "\nFROM transcript_entries\nWHERE " +
		strings.Join(conditions, "\n  AND ") + "\nORDER BY created_at, seq"
	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: search: %w", err)
	}
	return collectEntries(rows)
}

// Similar implements archive.Store.
func (s *Store) Similar(ctx context.Context, embedding []float32, limit int) ([]archive.Match, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT ` + selectColumns + `, embedding <=> $1 AS distance
		FROM   transcript_entries
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("archive postgres: similar: %w", err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.Match, error) {
		var m archive.Match
		err := scanEntry(row, &m.Entry, &m.Distance)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive postgres: scan rows: %w", err)
	}
	if matches == nil {
		matches = []archive.Match{}
	}
	return matches, nil
}

func scanEntry(row pgx.CollectableRow, e *archive.Entry, extra ...any) error {
	var (
		seq        int64
		durationNS int64
	)
	dest := append([]any{
		&e.SessionID, &seq, &e.Ref, &durationNS, &e.SourceLang, &e.TargetLang,
		&e.SourceText, &e.TargetText, &e.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	e.Seq = uint64(seq)
	e.Duration = time.Duration(durationNS)
	return nil
}

func collectEntries(rows pgx.Rows) ([]archive.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.Entry, error) {
		var e archive.Entry
		err := scanEntry(row, &e)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive postgres: scan rows: %w", err)
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	return entries, nil
}
