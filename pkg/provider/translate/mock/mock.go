// Package mock provides a test double for the translate.Translator interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/livescribe/pkg/provider/translate"
)

// TranslateCall records a single invocation of Translator.Translate.
type TranslateCall struct {
	Text   string
	Source string
	Target string
}

// Translator is a mock implementation of translate.Translator. By default it
// returns "[target] text".
type Translator struct {
	mu sync.Mutex

	// Result, if non-empty, is returned for every call.
	Result string

	// ResultFunc, if set, computes the result for each call.
	ResultFunc func(text, source, target string) (string, error)

	// Err, if non-nil, is returned as the error from Translate.
	Err error

	// Delay blocks each call for this long or until ctx is done.
	Delay time.Duration

	// Calls records every call to Translate.
	Calls []TranslateCall
}

// Translate records the call and returns the configured result.
func (m *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, TranslateCall{Text: text, Source: source, Target: target})
	delay, fn, res, err := m.Delay, m.ResultFunc, m.Result, m.Err
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	if err != nil {
		return "", err
	}
	if fn != nil {
		return fn(text, source, target)
	}
	if res != "" {
		return res, nil
	}
	return "[" + target + "] " + text, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (m *Translator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Translator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Ensure Translator implements translate.Translator at compile time.
var _ translate.Translator = (*Translator)(nil)
