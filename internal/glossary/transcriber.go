package glossary

import (
	"context"

	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
)

// Transcriber corrects the output of another [stt.Transcriber] against a
// [Glossary].
type Transcriber struct {
	next stt.Transcriber
	g    *Glossary
}

var _ stt.Transcriber = (*Transcriber)(nil)

// Wrap returns a Transcriber that runs next and corrects its text.
func (g *Glossary) Wrap(next stt.Transcriber) *Transcriber {
	return &Transcriber{next: next, g: g}
}

// Transcribe implements [stt.Transcriber]. Errors and empty results from
// the wrapped backend pass through untouched.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	text, err := t.next.Transcribe(ctx, samples)
	if err != nil || text == "" {
		return text, err
	}
	corrected, corrections := t.g.Correct(text)
	for _, c := range corrections {
		observe.Logger(ctx).Debug("glossary correction",
			"original", c.Original,
			"corrected", c.Corrected,
			"score", c.Score,
		)
	}
	return corrected, nil
}
