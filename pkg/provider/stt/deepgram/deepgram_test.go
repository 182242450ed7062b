package deepgram

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/livescribe/pkg/provider/stt"
)

// ---- helpers ----

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}

func makeSpeech(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return out
}

// newMockDeepgram starts a WebSocket server that consumes audio until it
// receives CloseStream, then replies with the given messages and closes
// normally. The number of audio bytes received is stored in *audioBytes.
func newMockDeepgram(t *testing.T, replies []string, audioBytes *atomic.Int64, authHeader *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authHeader != nil {
			authHeader.Store(r.Header.Get("Authorization"))
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				if audioBytes != nil {
					audioBytes.Add(int64(len(msg)))
				}
				continue
			}
			if strings.Contains(string(msg), "CloseStream") {
				break
			}
		}
		for _, m := range replies {
			if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL()
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_CustomOptions(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("de-DE"), WithSampleRate(8000),
		WithKeywords(Keyword{Word: "Kyiv", Boost: 2}, Keyword{Word: "Dnipro", Boost: 1.5}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, _ := p.buildURL()
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "8000", q.Get("sample_rate"))
	kws := q["keywords"]
	if len(kws) != 2 || kws[0] != "Kyiv:2" || kws[1] != "Dnipro:1.5" {
		t.Errorf("keywords = %v", kws)
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// ---- response parsing ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		wantText  string
		wantFinal bool
		wantOK    bool
	}{
		{"final", `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello","confidence":0.9}]}}`, "hello", true, true},
		{"interim", `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`, "hel", false, true},
		{"metadata", `{"type":"Metadata","request_id":"x"}`, "", false, false},
		{"no alternatives", `{"type":"Results","channel":{"alternatives":[]}}`, "", false, false},
		{"garbage", `not json`, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, final, ok := parseDeepgramResponse([]byte(tt.msg))
			if text != tt.wantText || final != tt.wantFinal || ok != tt.wantOK {
				t.Errorf("got (%q, %v, %v), want (%q, %v, %v)", text, final, ok, tt.wantText, tt.wantFinal, tt.wantOK)
			}
		})
	}
}

// ---- end to end against a local WebSocket server ----

func TestTranscribe_CollectsFinals(t *testing.T) {
	var audioBytes atomic.Int64
	var auth atomic.Value
	srv := newMockDeepgram(t, []string{
		`{"type":"Metadata"}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"good"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"good morning"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" everyone "}]}}`,
	}, &audioBytes, &auth)

	p, _ := New("secret", WithEndpoint(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := p.Transcribe(ctx, makeSpeech(4000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "good morning everyone", text)
	if got := audioBytes.Load(); got != 8000 {
		t.Errorf("server received %d audio bytes, want 8000", got)
	}
	if got, _ := auth.Load().(string); got != "Token secret" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := New("k")
	if _, err := p.Transcribe(context.Background(), nil); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorised", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("bad", WithEndpoint(wsURL(srv)))
	if _, err := p.Transcribe(context.Background(), makeSpeech(160)); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestTranscribe_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		// Never answer; just drain until the client goes away.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	p, _ := New("k", WithEndpoint(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := p.Transcribe(ctx, makeSpeech(160)); err == nil {
		t.Fatal("expected timeout error")
	}
}
