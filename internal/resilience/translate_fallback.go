package resilience

import (
	"context"

	"github.com/MrWong99/livescribe/pkg/provider/translate"
)

var _ translate.Translator = (*TranslateFallback)(nil)

// TranslateFallback is a [translate.Translator] that fails over across
// backends.
type TranslateFallback struct {
	group *FallbackGroup[translate.Translator]
}

// NewTranslateFallback returns a fallback chain starting with primary.
func NewTranslateFallback(primary translate.Translator, primaryName string, cfg FallbackConfig) *TranslateFallback {
	return &TranslateFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend.
func (f *TranslateFallback) AddFallback(name string, t translate.Translator) {
	f.group.AddFallback(name, t)
}

// Names lists the backends in try order.
func (f *TranslateFallback) Names() []string { return f.group.Names() }

// Translate returns the first successful translation. Texts that need no
// translation are answered without touching any backend.
func (f *TranslateFallback) Translate(ctx context.Context, text, source, target string) (string, error) {
	if translate.Skip(text, source, target) {
		return text, nil
	}
	return ExecuteWithResult(ctx, f.group, func(t translate.Translator) (string, error) {
		return t.Translate(ctx, text, source, target)
	})
}
