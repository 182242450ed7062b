package resilience

import (
	"context"

	"github.com/MrWong99/livescribe/pkg/provider/stt"
)

var _ stt.Transcriber = (*STTFallback)(nil)

// STTFallback is an [stt.Transcriber] that fails over across backends.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// NewSTTFallback returns a fallback chain starting with primary.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Names lists the backends in try order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// Transcribe returns the first successful transcription. Empty audio is
// rejected up front so it never counts against a breaker.
func (f *STTFallback) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", stt.ErrEmptyAudio
	}
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, samples)
	})
}
