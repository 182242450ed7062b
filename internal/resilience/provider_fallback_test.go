package resilience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/livescribe/internal/resilience"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/livescribe/pkg/provider/stt/mock"
	translatemock "github.com/MrWong99/livescribe/pkg/provider/translate/mock"
)

func TestSTTFallback(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("gpu oom")}
	backup := &sttmock.Transcriber{Text: "hello"}

	f := resilience.NewSTTFallback(primary, "whisper", resilience.FallbackConfig{})
	f.AddFallback("deepgram", backup)

	text, err := f.Transcribe(context.Background(), make([]float32, 160))
	if err != nil || text != "hello" {
		t.Fatalf("got (%q, %v)", text, err)
	}
	if primary.CallCount() != 1 || backup.CallCount() != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", primary.CallCount(), backup.CallCount())
	}
	if names := f.Names(); len(names) != 2 || names[1] != "deepgram" {
		t.Errorf("Names() = %v", names)
	}
}

func TestSTTFallback_EmptyAudio(t *testing.T) {
	primary := &sttmock.Transcriber{Text: "x"}
	f := resilience.NewSTTFallback(primary, "p", resilience.FallbackConfig{})
	if _, err := f.Transcribe(context.Background(), nil); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v", err)
	}
	if primary.CallCount() != 0 {
		t.Error("backend called for empty audio")
	}
}

func TestTranslateFallback(t *testing.T) {
	primary := &translatemock.Translator{Err: errors.New("rate limited")}
	backup := &translatemock.Translator{Result: "привет"}

	f := resilience.NewTranslateFallback(primary, "openai", resilience.FallbackConfig{})
	f.AddFallback("ollama", backup)

	out, err := f.Translate(context.Background(), "hello", "en", "ru")
	if err != nil || out != "привет" {
		t.Fatalf("got (%q, %v)", out, err)
	}
}

func TestTranslateFallback_AllFail(t *testing.T) {
	f := resilience.NewTranslateFallback(&translatemock.Translator{Err: errors.New("a")}, "a", resilience.FallbackConfig{})
	f.AddFallback("b", &translatemock.Translator{Err: errors.New("b")})
	if _, err := f.Translate(context.Background(), "hello", "en", "ru"); !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTranslateFallback_SkipsSameLanguage(t *testing.T) {
	primary := &translatemock.Translator{}
	f := resilience.NewTranslateFallback(primary, "p", resilience.FallbackConfig{})
	out, err := f.Translate(context.Background(), "hello", "en", "EN")
	if err != nil || out != "hello" {
		t.Fatalf("got (%q, %v)", out, err)
	}
	if primary.CallCount() != 0 {
		t.Error("backend called although no translation was needed")
	}
}
