package segment_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/livescribe/pkg/segment"
)

func makeSpeech(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return out
}

func newWriter(t *testing.T, opts ...segment.Option) (*segment.Writer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "segments")
	w, err := segment.New(dir, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, dir
}

func TestNew_PurgesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "segments")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, "chunk-0.wav")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := segment.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("directory has %d entries after purge, want 0", len(entries))
	}
	if w.Count() != 0 {
		t.Fatalf("Count = %d, want 0", w.Count())
	}
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		opts []segment.Option
	}{
		{"empty dir", "", nil},
		{"empty prefix", "x", []segment.Option{segment.WithPrefix("")}},
		{"path in prefix", "x", []segment.Option{segment.WithPrefix("a/b")}},
		{"bad rate", "x", []segment.Option{segment.WithSampleRate(0)}},
		{"bad depth", "x", []segment.Option{segment.WithBitDepth(12)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.dir
			if dir != "" {
				dir = filepath.Join(t.TempDir(), dir)
			}
			if _, err := segment.New(dir, tt.opts...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWrite_SequentialReferences(t *testing.T) {
	w, dir := newWriter(t)
	for i := range 3 {
		ref, err := w.Write(makeSpeech(1600))
		if err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
		want := filepath.Join(dir, "chunk-"+string(rune('0'+i))+".wav")
		if ref != want {
			t.Errorf("ref %d = %q, want %q", i, ref, want)
		}
		if _, err := os.Stat(ref); err != nil {
			t.Errorf("file %q missing: %v", ref, err)
		}
	}
	if w.Count() != 3 {
		t.Fatalf("Count = %d, want 3", w.Count())
	}
}

func TestWrite_CustomPrefix(t *testing.T) {
	w, dir := newWriter(t, segment.WithPrefix("utt"))
	ref, err := w.Write(makeSpeech(10))
	if err != nil {
		t.Fatal(err)
	}
	if ref != filepath.Join(dir, "utt-0.wav") {
		t.Fatalf("ref = %q", ref)
	}
}

func TestWrite_EmptyDoesNotAdvance(t *testing.T) {
	w, _ := newWriter(t)
	if _, err := w.Write(nil); !errors.Is(err, segment.ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
	if w.Count() != 0 {
		t.Fatalf("Count = %d, want 0", w.Count())
	}
}

func TestWrite_FailureDoesNotAdvance(t *testing.T) {
	w, dir := newWriter(t)
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(makeSpeech(100)); err == nil {
		t.Fatal("expected error writing into a removed directory")
	}
	if w.Count() != 0 {
		t.Fatalf("Count = %d after failed write, want 0", w.Count())
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	ref, err := w.Write(makeSpeech(100))
	if err != nil {
		t.Fatalf("Write after recovery: %v", err)
	}
	if filepath.Base(ref) != "chunk-0.wav" {
		t.Fatalf("ref = %q, want chunk-0.wav", ref)
	}
}

func TestResetCounter_Overwrites(t *testing.T) {
	w, dir := newWriter(t)
	for range 2 {
		if _, err := w.Write(makeSpeech(1600)); err != nil {
			t.Fatal(err)
		}
	}
	w.ResetCounter()
	if w.Count() != 0 {
		t.Fatalf("Count = %d, want 0", w.Count())
	}
	if _, err := os.Stat(filepath.Join(dir, "chunk-1.wav")); err != nil {
		t.Fatalf("ResetCounter must not delete files: %v", err)
	}

	ref, err := w.Write(makeSpeech(320))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(ref) != "chunk-0.wav" {
		t.Fatalf("ref = %q, want chunk-0.wav", ref)
	}
	samples, _, err := w.Read(ref)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 320 {
		t.Fatalf("overwritten file has %d samples, want 320", len(samples))
	}
}

func TestRead_RoundTrip(t *testing.T) {
	w, _ := newWriter(t)
	orig := makeSpeech(16000)
	ref, err := w.Write(orig)
	if err != nil {
		t.Fatal(err)
	}
	got, rate, err := w.Read(ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("rate = %d, want 16000", rate)
	}
	if len(got) != len(orig) {
		t.Fatalf("got %d samples, want %d", len(got), len(orig))
	}
	for i := range orig {
		if d := math.Abs(float64(got[i] - orig[i])); d > 1.0/32768 {
			t.Fatalf("sample %d differs by %g", i, d)
		}
	}
}

func TestRead_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := segment.ReadFile(path); err == nil {
		t.Fatal("expected error for invalid WAV")
	}
	if _, _, err := segment.ReadFile(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolve(t *testing.T) {
	w, dir := newWriter(t)
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"chunk-0", filepath.Join(dir, "chunk-0.wav"), false},
		{"chunk-12.wav", filepath.Join(dir, "chunk-12.wav"), false},
		{"chunk-01", "", true},
		{"chunk-", "", true},
		{"other-1", "", true},
		{"../chunk-1", "", true},
		{"chunk-1/../../etc", "", true},
	}
	for _, tt := range tests {
		got, err := w.Resolve(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("Resolve(%q) err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, segment.ErrInvalidName) {
			t.Errorf("Resolve(%q) err = %v, want ErrInvalidName", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestIndex(t *testing.T) {
	w, dir := newWriter(t)
	n, err := w.Index(filepath.Join(dir, "chunk-42.wav"))
	if err != nil || n != 42 {
		t.Fatalf("Index = %d, %v; want 42", n, err)
	}
	if _, err := w.Index("nope"); !errors.Is(err, segment.ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
}
