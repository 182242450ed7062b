package audio

import (
	"log/slog"
	"sync"
)

// Normalizer turns raw client chunks into canonical mono float32 samples at
// TargetRate: decode, downmix, clip, resample. It logs once on the first
// format mismatch and once on the first malformed chunk.
// Create one per stream; not designed for shared use across goroutines.
type Normalizer struct {
	TargetRate int

	resampler      *Resampler
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// NewNormalizer returns a Normalizer producing samples at targetRate. The
// options configure the embedded [Resampler].
func NewNormalizer(targetRate int, opts ...ResamplerOption) *Normalizer {
	return &Normalizer{TargetRate: targetRate, resampler: NewResampler(opts...)}
}

// Normalize converts c. isLast is forwarded to the resampler to flush its
// tail at end of stream.
func (n *Normalizer) Normalize(c Chunk, isLast bool) ([]float32, error) {
	samples, err := Decode(c)
	if err != nil {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: rejecting chunk",
				"bytes", len(c.Data),
				"format", c.Format.String(),
				"err", err,
			)
		})
		return nil, err
	}

	if c.Format.SampleRate != n.TargetRate || c.Format.Channels != 1 {
		n.warnedMismatch.Do(func() {
			slog.Info("audio format mismatch: converting",
				"from", formatString(c.Format.SampleRate, c.Format.Channels),
				"to", formatString(n.TargetRate, 1),
			)
		})
	}

	return n.resampler.Resample(samples, c.Format.SampleRate, n.TargetRate, isLast)
}

// Reset clears the resampler so the next chunk may use a different rate.
func (n *Normalizer) Reset() { n.resampler.Reset() }
