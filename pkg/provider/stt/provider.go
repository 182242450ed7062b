// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A Transcriber turns one finalised utterance (mono float32 samples at the
// canonical pipeline rate, normally 16 kHz) into text in the configured
// source language. Utterance boundaries are decided upstream by the energy
// segmenter, so every backend here is used in batch mode even when the
// underlying service supports streaming.
//
// Backends are selected once at startup through the config registry and are
// never swapped while a session is running.
//
// Implementations must be safe for concurrent use: the stream processor
// calls Transcribe from several workers at once.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by implementations when asked to transcribe an
// empty sample slice.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Transcriber is the abstraction over any batch STT backend.
type Transcriber interface {
	// Transcribe returns the recognised text for samples. An utterance that
	// contains no recognisable speech yields "" and a nil error. ctx bounds
	// the call; implementations must return promptly once it is done.
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// TranscriberFunc adapts an ordinary function to the [Transcriber]
// interface.
type TranscriberFunc func(ctx context.Context, samples []float32) (string, error)

// Transcribe calls f(ctx, samples).
func (f TranscriberFunc) Transcribe(ctx context.Context, samples []float32) (string, error) {
	return f(ctx, samples)
}
