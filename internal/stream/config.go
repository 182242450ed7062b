package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/livescribe/pkg/vad"
)

// Pipeline defaults.
const (
	DefaultMinUtteranceDuration = 500 * time.Millisecond
	DefaultWorkers              = 2
	DefaultBacklog              = 64
	DefaultCallTimeout          = 30 * time.Second
	DefaultSourceLang           = "en"
	DefaultTargetLang           = "ru"

	// DefaultMinSilenceDuration is the trailing silence the processor uses
	// to close an utterance. It is shorter than the detector's own default
	// so live captions keep up with conversational pauses.
	DefaultMinSilenceDuration = 1500 * time.Millisecond
)

// Config configures a [Processor].
type Config struct {
	// VAD drives the segmenter.
	VAD vad.Config

	// MinUtteranceDuration drops shorter utterances before they are written.
	MinUtteranceDuration time.Duration

	// Workers is the number of concurrent transcription workers.
	Workers int

	// Backlog is the number of utterances that may wait for the writer
	// before a warning is logged. The queue itself is unbounded.
	Backlog int

	// CallTimeout bounds each transcribe and translate call.
	CallTimeout time.Duration

	// FlushOnStop finalizes an in-progress utterance on Stop instead of
	// discarding it.
	FlushOnStop bool

	// SourceLang and TargetLang are ISO-639-1 codes passed to the
	// translator.
	SourceLang string
	TargetLang string
}

// DefaultConfig returns the processor defaults.
func DefaultConfig() Config {
	v := vad.DefaultConfig()
	v.MinSilenceDuration = DefaultMinSilenceDuration
	return Config{
		VAD:                  v,
		MinUtteranceDuration: DefaultMinUtteranceDuration,
		Workers:              DefaultWorkers,
		Backlog:              DefaultBacklog,
		CallTimeout:          DefaultCallTimeout,
		SourceLang:           DefaultSourceLang,
		TargetLang:           DefaultTargetLang,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.VAD.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MinUtteranceDuration < 0 {
		errs = append(errs, fmt.Errorf("stream: min utterance duration must not be negative, got %v", c.MinUtteranceDuration))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("stream: workers must be positive, got %d", c.Workers))
	}
	if c.Backlog <= 0 {
		errs = append(errs, fmt.Errorf("stream: backlog must be positive, got %d", c.Backlog))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stream: call timeout must be positive, got %v", c.CallTimeout))
	}
	if c.SourceLang == "" || c.TargetLang == "" {
		errs = append(errs, errors.New("stream: source and target language must be set"))
	}
	return errors.Join(errs...)
}
