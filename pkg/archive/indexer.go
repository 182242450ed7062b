package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/livescribe/pkg/provider/embeddings"
)

// Indexer wraps a Store and embeds each entry's source text before it is
// appended. An embedding failure is logged and the entry is stored without a
// vector.
type Indexer struct {
	store    Store
	embedder embeddings.Provider
}

// NewIndexer returns an Indexer. embedder may be nil, in which case entries
// are stored unembedded and SimilarText returns [ErrNoEmbeddings].
func NewIndexer(store Store, embedder embeddings.Provider) *Indexer {
	return &Indexer{store: store, embedder: embedder}
}

// Store returns the wrapped store.
func (ix *Indexer) Store() Store { return ix.store }

// Append embeds e.SourceText when possible and stores e.
func (ix *Indexer) Append(ctx context.Context, e Entry) error {
	if ix.embedder != nil && e.Embedding == nil && strings.TrimSpace(e.SourceText) != "" {
		vec, err := ix.embedder.Embed(ctx, e.SourceText)
		if err != nil {
			slog.Warn("archive: embedding failed, storing entry without vector",
				"session_id", e.SessionID, "seq", e.Seq, "err", err)
		} else {
			e.Embedding = vec
		}
	}
	return ix.store.Append(ctx, e)
}

// SimilarText embeds query and returns the nearest archived entries.
func (ix *Indexer) SimilarText(ctx context.Context, query string, limit int) ([]Match, error) {
	if ix.embedder == nil {
		return nil, ErrNoEmbeddings
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("archive: embed query: %w", err)
	}
	return ix.store.Similar(ctx, vec, limit)
}
