package app

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/livescribe/pkg/archive"
)

const (
	defaultArchiveLimit = 20
	maxArchiveLimit     = 200
)

// registerArchiveRoutes exposes the transcript archive. Without a store
// the routes are not mounted and answer 404.
func (a *App) registerArchiveRoutes(mux *http.ServeMux) {
	if a.indexer == nil {
		return
	}
	mux.HandleFunc("GET /v1/archive/sessions/{id}", a.handleArchiveSession)
	mux.HandleFunc("GET /v1/archive/search", a.handleArchiveSearch)
	mux.HandleFunc("GET /v1/archive/similar", a.handleArchiveSimilar)
}

func (a *App) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	entries, err := a.store.BySession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleArchiveSearch serves ?q=&session=&after=&before=&limit=. Times are
// RFC 3339.
func (a *App) handleArchiveSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("q") == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := archive.SearchOpts{SessionID: q.Get("session"), Limit: limit}
	for key, dst := range map[string]*time.Time{"after": &opts.After, "before": &opts.Before} {
		if v := q.Get(key); v != "" {
			if *dst, err = time.Parse(time.RFC3339, v); err != nil {
				writeError(w, http.StatusBadRequest, key+": "+err.Error())
				return
			}
		}
	}
	entries, err := a.store.Search(r.Context(), q.Get("q"), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *App) handleArchiveSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("q") == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	matches, err := a.indexer.SimilarText(r.Context(), q.Get("q"), limit)
	switch {
	case errors.Is(err, archive.ErrNoEmbeddings):
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return defaultArchiveLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxArchiveLimit), nil
}
