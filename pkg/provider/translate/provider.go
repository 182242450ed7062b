// Package translate defines the Translator interface for machine translation
// backends and the prompt shared by the LLM-based implementations.
//
// Implementations must be safe for concurrent use.
package translate

import (
	"context"
	"fmt"
	"strings"
)

// Translator converts text from the source language to the target
// language. Languages are ISO-639-1 codes such as "en" or "ru".
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// TranslatorFunc adapts an ordinary function to the [Translator] interface.
type TranslatorFunc func(ctx context.Context, text, source, target string) (string, error)

// Translate calls f(ctx, text, source, target).
func (f TranslatorFunc) Translate(ctx context.Context, text, source, target string) (string, error) {
	return f(ctx, text, source, target)
}

// languageNames maps common ISO-639-1 codes to English names for prompts.
var languageNames = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"zh": "Chinese",
}

// LanguageName returns the English name for code, or code itself when it
// is not known.
func LanguageName(code string) string {
	if n, ok := languageNames[strings.ToLower(code)]; ok {
		return n
	}
	return code
}

// SystemPrompt returns the instruction used by chat-model translators.
func SystemPrompt(source, target string) string {
	return fmt.Sprintf(
		"You are a professional interpreter. Translate the user's %s speech transcript into %s. "+
			"Reply with the translation only, without quotes, notes or explanations. "+
			"Keep names and numbers as spoken.",
		LanguageName(source), LanguageName(target))
}

// Skip reports whether text needs no translation: it is blank, or source
// and target are the same language.
func Skip(text, source, target string) bool {
	return strings.TrimSpace(text) == "" || strings.EqualFold(source, target)
}
