// Package archive defines durable storage for released transcript records.
//
// The stream processor appends every record it publishes; the HTTP API reads
// them back per session, by full-text query, or by vector similarity when an
// embeddings provider is configured.
package archive

import (
	"context"
	"errors"
	"time"
)

// ErrNoEmbeddings is returned by similarity queries when no embeddings
// provider is configured.
var ErrNoEmbeddings = errors.New("archive: similarity search needs an embeddings provider")

// Entry is one archived transcript record.
type Entry struct {
	SessionID  string        `json:"session_id"`
	Seq        uint64        `json:"seq"`
	Ref        string        `json:"ref"`
	Duration   time.Duration `json:"duration"`
	SourceLang string        `json:"source_lang"`
	TargetLang string        `json:"target_lang"`
	SourceText string        `json:"source_text"`
	TargetText string        `json:"target_text"`
	CreatedAt  time.Time     `json:"created_at"`

	// Embedding is the vector of SourceText. It may be nil.
	Embedding []float32 `json:"-"`
}

// SearchOpts narrows a full-text search. Zero values mean no filter.
type SearchOpts struct {
	SessionID string
	After     time.Time
	Before    time.Time
	Limit     int
}

// Match is an entry returned by a similarity query together with its cosine
// distance to the query vector. Lower is closer.
type Match struct {
	Entry    Entry   `json:"entry"`
	Distance float64 `json:"distance"`
}

// Store persists transcript entries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores e. Entries are keyed by (SessionID, Seq); appending the
	// same key twice replaces the earlier entry.
	Append(ctx context.Context, e Entry) error

	// BySession returns all entries of a session in Seq order.
	BySession(ctx context.Context, sessionID string) ([]Entry, error)

	// Search runs a full-text query over source and target text, oldest
	// first.
	Search(ctx context.Context, query string, opts SearchOpts) ([]Entry, error)

	// Similar returns the limit entries nearest to embedding, closest
	// first. Entries without an embedding are never returned.
	Similar(ctx context.Context, embedding []float32, limit int) ([]Match, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
