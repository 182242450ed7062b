// Package vad implements the energy-based voice activity detector that splits
// a continuous mono stream into utterances.
//
// The central type is [Segmenter]: it frames incoming audio into fixed-length
// blocks, classifies each block as speech or silence by its RMS energy, and
// assembles contiguous speech (plus a symmetric overlap of surrounding
// silence) into [Utterance] values that are handed to a callback once enough
// trailing silence has been observed.
//
// A Segmenter is not safe for concurrent use. Chunks must be delivered in
// arrival order from a single goroutine, or serialised by the caller.
package vad

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by [NewSegmenter] and [Segmenter.SetOptions]
// when the supplied [Config] cannot drive a detector.
var ErrInvalidConfig = errors.New("vad: invalid config")

const (
	DefaultSampleRate         = 16000
	DefaultFrameDuration      = 30 * time.Millisecond
	DefaultEnergyThreshold    = 0.01
	DefaultMinSilenceDuration = 2500 * time.Millisecond
)

// Config holds the detector parameters. It is immutable for the lifetime of a
// Segmenter unless replaced via [Segmenter.SetOptions].
type Config struct {
	// SampleRate is the canonical sample rate of the input in Hz.
	SampleRate int

	// FrameDuration is the length of one classified frame.
	FrameDuration time.Duration

	// EnergyThreshold is the RMS level a frame must strictly exceed to count
	// as speech. Samples are expected in [-1, 1].
	EnergyThreshold float64

	// MinSilenceDuration is the trailing silence that ends an utterance.
	MinSilenceDuration time.Duration
}

// DefaultConfig returns the detector defaults: 16 kHz, 30 ms frames, an RMS
// threshold of 0.01 and 2.5 s of trailing silence.
func DefaultConfig() Config {
	return Config{
		SampleRate:         DefaultSampleRate,
		FrameDuration:      DefaultFrameDuration,
		EnergyThreshold:    DefaultEnergyThreshold,
		MinSilenceDuration: DefaultMinSilenceDuration,
	}
}

// samplesFor converts d to a whole number of samples at the configured rate,
// truncating any fractional sample.
func (c Config) samplesFor(d time.Duration) int {
	return int(int64(c.SampleRate) * int64(d) / int64(time.Second))
}

// FrameSamples returns the number of samples in one frame.
func (c Config) FrameSamples() int { return c.samplesFor(c.FrameDuration) }

// MinSilenceSamples returns the trailing-silence length, in samples, that
// finalises an utterance.
func (c Config) MinSilenceSamples() int { return c.samplesFor(c.MinSilenceDuration) }

// OverlapSamples returns the amount of silence context kept on either side of
// an utterance. It is always half of [Config.MinSilenceSamples].
func (c Config) OverlapSamples() int { return c.MinSilenceSamples() / 2 }

// Validate reports every problem with c as a single joined error wrapping
// [ErrInvalidConfig].
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", c.SampleRate))
	}
	if c.FrameDuration <= 0 {
		errs = append(errs, fmt.Errorf("frame duration %s must be positive", c.FrameDuration))
	} else if c.SampleRate > 0 && c.FrameSamples() == 0 {
		errs = append(errs, fmt.Errorf("frame duration %s is shorter than one sample at %d Hz", c.FrameDuration, c.SampleRate))
	}
	if c.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("energy threshold %g must not be negative", c.EnergyThreshold))
	}
	if c.MinSilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("min silence duration %s must be positive", c.MinSilenceDuration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
