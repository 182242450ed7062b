// Package mock provides a test double for the stt.Transcriber interface.
//
// Configure the returned text with Text or TextFunc, inject failures with
// Err, and slow calls down with Delay to exercise timeouts and worker
// ordering. Every call is recorded.
//
// Example:
//
//	tr := &mock.Transcriber{Text: "hello"}
//	text, _ := tr.Transcribe(ctx, samples)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/livescribe/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the samples passed to Transcribe.
	Samples []float32
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned when TextFunc is nil.
	Text string

	// TextFunc, if set, computes the result for each call.
	TextFunc func(samples []float32) (string, error)

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Delay blocks each call for this long or until ctx is done.
	Delay time.Duration

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (m *Transcriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, TranscribeCall{Samples: append([]float32(nil), samples...)})
	delay, fn, text, err := m.Delay, m.TextFunc, m.Text, m.Err
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
		return fn(samples)
	}
	return text, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
