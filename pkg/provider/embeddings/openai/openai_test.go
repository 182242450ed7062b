package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/livescribe/pkg/provider/embeddings"
)

type embedRequest struct {
	Model      string          `json:"model"`
	Input      json.RawMessage `json:"input"`
	Dimensions int             `json:"dimensions"`
}

// newMockServer answers /embeddings with one vector [i, i+0.5] per input,
// in reverse order to exercise index mapping.
func newMockServer(t *testing.T, last *atomic.Pointer[embedRequest]) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		last.Store(&req)
		n := 1
		var many []string
		if json.Unmarshal(req.Input, &many) == nil {
			n = len(many)
		}
		data := make([]map[string]any, 0, n)
		for i := n - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), float64(i) + 0.5},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
	if _, err := New("k", "", WithDimensions(-1)); err == nil {
		t.Fatal("expected error for negative dimensions")
	}
	p, err := New("k", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.ModelID() != DefaultModel || p.Dimensions() != 1536 {
		t.Errorf("defaults = (%q, %d)", p.ModelID(), p.Dimensions())
	}
}

func TestKnownDimensions(t *testing.T) {
	tests := map[string]int{
		"text-embedding-3-large": 3072,
		"text-embedding-3-small": 1536,
		"text-embedding-ada-002": 1536,
		"nomic-embed-text":       0,
	}
	for model, want := range tests {
		if got := knownDimensions(model); got != want {
			t.Errorf("knownDimensions(%q) = %d, want %d", model, got, want)
		}
	}
}

func TestEmbed(t *testing.T) {
	var last atomic.Pointer[embedRequest]
	srv := newMockServer(t, &last)
	p, _ := New("k", "", WithBaseURL(srv.URL+"/"), WithMaxRetries(0))

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.5 {
		t.Errorf("vec = %v", vec)
	}
	if req := last.Load(); req.Dimensions != 0 {
		t.Errorf("dimensions sent without WithDimensions: %d", req.Dimensions)
	}
}

func TestEmbed_Blank(t *testing.T) {
	p, _ := New("k", "")
	if _, err := p.Embed(context.Background(), "  "); !errors.Is(err, embeddings.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	var last atomic.Pointer[embedRequest]
	srv := newMockServer(t, &last)
	p, _ := New("k", "text-embedding-3-large", WithBaseURL(srv.URL+"/"), WithMaxRetries(0), WithDimensions(256))

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vecs[%d] = %v", i, v)
		}
	}
	if req := last.Load(); req.Dimensions != 256 {
		t.Errorf("dimensions = %d, want 256", req.Dimensions)
	}
	if p.Dimensions() != 256 {
		t.Errorf("Dimensions() = %d", p.Dimensions())
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	p, _ := New("k", "")
	vecs, err := p.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("got (%v, %v)", vecs, err)
	}
}
