package vad

import (
	"math"
	"time"
)

// State is the detector's current classification mode.
type State int

const (
	// StateSilence means no utterance is in progress.
	StateSilence State = iota

	// StateSpeech means an utterance is being accumulated.
	StateSpeech
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StateSpeech:
		return "speech"
	default:
		return "unknown"
	}
}

// Utterance is a finalised speech segment including its leading and trailing
// silence overlap. The Samples slice belongs to the receiver; the Segmenter
// never touches it again after emitting.
type Utterance struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Seconds returns the playback length in seconds.
func (u Utterance) Seconds() float64 {
	if u.SampleRate <= 0 {
		return 0
	}
	return float64(len(u.Samples)) / float64(u.SampleRate)
}

// Segmenter is the streaming energy detector. Create one with [NewSegmenter].
type Segmenter struct {
	cfg        Config
	frame      int
	minSilence int
	overlap    int

	onUtterance func(Utterance)

	state      State
	silenceRun int

	pending   []float32
	silence   []float32
	utterance []float32

	consumed int64
}

// NewSegmenter returns a Segmenter in [StateSilence] with empty buffers.
// onUtterance is invoked synchronously from [Segmenter.ProcessChunk] and
// [Segmenter.Flush] for every finalised utterance; it may be nil.
func NewSegmenter(cfg Config, onUtterance func(Utterance)) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Segmenter{onUtterance: onUtterance}
	s.apply(cfg)
	return s, nil
}

// SetOptions replaces the configuration and resets all buffers and state. An
// utterance in progress is discarded. On a validation error the Segmenter is
// left unchanged.
func (s *Segmenter) SetOptions(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.apply(cfg)
	return nil
}

func (s *Segmenter) apply(cfg Config) {
	s.cfg = cfg
	s.frame = cfg.FrameSamples()
	s.minSilence = cfg.MinSilenceSamples()
	s.overlap = cfg.OverlapSamples()
	s.Reset()
}

// Reset clears the pending, silence and utterance buffers and returns to
// [StateSilence].
func (s *Segmenter) Reset() {
	s.state = StateSilence
	s.silenceRun = 0
	s.pending = s.pending[:0]
	s.silence = s.silence[:0]
	s.utterance = nil
	s.consumed = 0
}

// ProcessChunk feeds an arbitrarily sized chunk of canonical-rate mono
// samples. Whole frames are classified immediately; a trailing partial frame
// is held over and prefixed to the next chunk. The caller keeps ownership of
// samples.
func (s *Segmenter) ProcessChunk(samples []float32) {
	buf := samples
	if len(s.pending) > 0 {
		buf = append(s.pending, samples...)
	}

	off := 0
	for len(buf)-off >= s.frame {
		s.processFrame(buf[off : off+s.frame])
		off += s.frame
		s.consumed += int64(s.frame)
	}

	// append handles the overlap when buf aliases s.pending.
	s.pending = append(s.pending[:0], buf[off:]...)
}

func (s *Segmenter) processFrame(frame []float32) {
	speech := RMS(frame) > s.cfg.EnergyThreshold

	switch s.state {
	case StateSilence:
		if speech {
			utt := make([]float32, 0, len(s.silence)+len(frame)+s.minSilence)
			utt = append(utt, s.silence...)
			s.utterance = append(utt, frame...)
			s.silence = s.silence[:0]
			s.silenceRun = 0
			s.state = StateSpeech
			return
		}
		s.silence = append(s.silence, frame...)
		s.trimSilence()

	case StateSpeech:
		s.utterance = append(s.utterance, frame...)
		if speech {
			s.silenceRun = 0
			return
		}
		s.silenceRun += len(frame)
		if s.silenceRun >= s.minSilence {
			s.finalize()
		}
	}
}

// trimSilence drops the oldest ring-buffer samples beyond the overlap.
func (s *Segmenter) trimSilence() {
	if n := len(s.silence); n > s.overlap {
		s.silence = append(s.silence[:0], s.silence[n-s.overlap:]...)
	}
}

// finalize emits the current utterance, keeping at most overlap samples of
// its trailing silence, and moves the excess into the silence ring buffer.
func (s *Segmenter) finalize() {
	buf := s.utterance
	trim := s.silenceRun - s.overlap

	s.silence = s.silence[:0]
	if trim > 0 {
		if trim > len(buf) {
			trim = len(buf)
		}
		s.silence = append(s.silence, buf[len(buf)-trim:]...)
		s.trimSilence()
		buf = buf[:len(buf)-trim:len(buf)-trim]
	}

	s.state = StateSilence
	s.silenceRun = 0
	s.utterance = nil

	if s.onUtterance != nil && len(buf) > 0 {
		s.onUtterance(Utterance{Samples: buf, SampleRate: s.cfg.SampleRate})
	}
}

// Flush force-finalises an utterance in progress, using the silence already
// accumulated as its trailing context. It reports whether an utterance was
// emitted. The pending partial frame is kept so a live stream stays aligned.
func (s *Segmenter) Flush() bool {
	if s.state != StateSpeech || len(s.utterance) == 0 {
		return false
	}
	s.finalize()
	return true
}

// State returns the current detector state.
func (s *Segmenter) State() State { return s.state }

// Config returns the active configuration.
func (s *Segmenter) Config() Config { return s.cfg }

// PendingLen returns the number of held-over samples not yet framed.
func (s *Segmenter) PendingLen() int { return len(s.pending) }

// SilenceLen returns the current silence ring-buffer length.
func (s *Segmenter) SilenceLen() int { return len(s.silence) }

// UtteranceLen returns the length of the utterance in progress.
func (s *Segmenter) UtteranceLen() int { return len(s.utterance) }

// Consumed returns the number of samples classified as frames since the last
// reset.
func (s *Segmenter) Consumed() int64 { return s.consumed }

// RMS returns the root-mean-square amplitude of frame, or 0 for an empty
// frame.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}
