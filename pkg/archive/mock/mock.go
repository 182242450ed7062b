// Package mock provides an in-memory archive.Store for tests.
package mock

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/livescribe/pkg/archive"
)

var _ archive.Store = (*Store)(nil)

// Store keeps entries in memory. Search is a case-insensitive substring
// match and Similar uses exact cosine distance.
type Store struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every method.
	Err error

	entries []archive.Entry
	// AppendCalls counts Append invocations, including failed ones.
	AppendCalls int
}

// Append implements archive.Store.
func (s *Store) Append(_ context.Context, e archive.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendCalls++
	if s.Err != nil {
		return s.Err
	}
	for i := range s.entries {
		if s.entries[i].SessionID == e.SessionID && s.entries[i].Seq == e.Seq {
			s.entries[i] = e
			return nil
		}
	}
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of everything stored, in append order.
func (s *Store) Entries() []archive.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// BySession implements archive.Store.
func (s *Store) BySession(_ context.Context, sessionID string) ([]archive.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []archive.Entry{}
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b archive.Entry) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}

// Search implements archive.Store.
func (s *Store) Search(_ context.Context, query string, opts archive.SearchOpts) ([]archive.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	q := strings.ToLower(query)
	out := []archive.Entry{}
	for _, e := range s.entries {
		if opts.SessionID != "" && e.SessionID != opts.SessionID {
			continue
		}
		if !opts.After.IsZero() && !e.CreatedAt.After(opts.After) {
			continue
		}
		if !opts.Before.IsZero() && !e.CreatedAt.Before(opts.Before) {
			continue
		}
		if strings.Contains(strings.ToLower(e.SourceText), q) || strings.Contains(strings.ToLower(e.TargetText), q) {
			out = append(out, e)
		}
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Similar implements archive.Store.
func (s *Store) Similar(_ context.Context, embedding []float32, limit int) ([]archive.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []archive.Match{}
	for _, e := range s.entries {
		if len(e.Embedding) != len(embedding) || len(embedding) == 0 {
			continue
		}
		out = append(out, archive.Match{Entry: e, Distance: cosineDistance(e.Embedding, embedding)})
	}
	slices.SortStableFunc(out, func(a, b archive.Match) int { return cmp.Compare(a.Distance, b.Distance) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping implements archive.Store.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Err
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
