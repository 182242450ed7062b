package translate_test

import (
	"context"
	"strings"
	"testing"

	"github.com/MrWong99/livescribe/pkg/provider/translate"
)

func TestLanguageName(t *testing.T) {
	tests := map[string]string{"en": "English", "RU": "Russian", "xx": "xx"}
	for code, want := range tests {
		if got := translate.LanguageName(code); got != want {
			t.Errorf("LanguageName(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestSystemPrompt_NamesBothLanguages(t *testing.T) {
	p := translate.SystemPrompt("en", "ru")
	if !strings.Contains(p, "English") || !strings.Contains(p, "Russian") {
		t.Fatalf("prompt %q does not name both languages", p)
	}
}

func TestSkip(t *testing.T) {
	if !translate.Skip("   ", "en", "ru") {
		t.Error("blank text should be skipped")
	}
	if !translate.Skip("hello", "en", "EN") {
		t.Error("same-language pair should be skipped")
	}
	if translate.Skip("hello", "en", "ru") {
		t.Error("real translation should not be skipped")
	}
}

func TestTranslatorFunc(t *testing.T) {
	var f translate.Translator = translate.TranslatorFunc(func(_ context.Context, text, _, tgt string) (string, error) {
		return tgt + ":" + text, nil
	})
	got, err := f.Translate(context.Background(), "hi", "en", "ru")
	if err != nil || got != "ru:hi" {
		t.Fatalf("got %q, %v", got, err)
	}
}
