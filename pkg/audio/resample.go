package audio

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfigurationMismatch is returned when a [Resampler] that is bound
	// to one rate pair is asked to convert another without a [Resampler.Reset].
	ErrConfigurationMismatch = errors.New("audio: resampler configuration mismatch")

	// ErrInvalidRate is returned for non-positive sample rates.
	ErrInvalidRate = errors.New("audio: invalid sample rate")

	// ErrInvalidFormat is returned when a chunk's format cannot be decoded.
	ErrInvalidFormat = errors.New("audio: invalid format")

	// ErrMalformedChunk is returned when chunk data does not align with its
	// format.
	ErrMalformedChunk = errors.New("audio: malformed chunk")
)

// DefaultIdleReset is the gap between calls after which the interpolation
// history is discarded.
const DefaultIdleReset = 200 * time.Millisecond

// ResamplerOption configures a [Resampler].
type ResamplerOption func(*Resampler)

// WithIdleReset overrides [DefaultIdleReset]. A non-positive value disables
// idle clearing.
func WithIdleReset(d time.Duration) ResamplerOption {
	return func(r *Resampler) { r.idle = d }
}

// WithClock injects the time source used for idle detection.
func WithClock(now func() time.Time) ResamplerOption {
	return func(r *Resampler) { r.now = now }
}

// Resampler is a streaming mono sample-rate converter using linear
// interpolation. It keeps one sample of history between calls so that a
// stream split into arbitrary chunks produces exactly the output of the
// concatenated stream.
//
// Output positions are tracked as exact integers (in units of 1/outRate of
// an input sample), so no drift accumulates over long sessions.
//
// A Resampler is not safe for concurrent use.
type Resampler struct {
	inRate, outRate int
	bound           bool

	held    float32
	hasHeld bool

	// pos is the next output position relative to the first sample of the
	// current extended buffer, scaled by outRate.
	pos int64

	last time.Time
	idle time.Duration
	now  func() time.Time
}

// NewResampler returns an unbound Resampler. The rate pair is fixed by the
// first call to [Resampler.Resample] that needs conversion.
func NewResampler(opts ...ResamplerOption) *Resampler {
	r := &Resampler{idle: DefaultIdleReset, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resample converts samples from inRate to outRate. When the rates are equal
// samples is returned as-is and no state is touched. isLast flushes the
// samples still waiting on a right neighbour and clears the history.
func (r *Resampler) Resample(samples []float32, inRate, outRate int, isLast bool) ([]float32, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, inRate, outRate)
	}
	if inRate == outRate {
		return samples, nil
	}

	if r.bound && (r.inRate != inRate || r.outRate != outRate) {
		return nil, fmt.Errorf("%w: bound to %d -> %d, got %d -> %d",
			ErrConfigurationMismatch, r.inRate, r.outRate, inRate, outRate)
	}

	now := r.now()
	if !r.bound {
		r.inRate, r.outRate, r.bound = inRate, outRate, true
	} else if r.idle > 0 && now.Sub(r.last) > r.idle {
		r.clearHistory()
	}
	r.last = now

	ext := samples
	if r.hasHeld {
		ext = make([]float32, 0, len(samples)+1)
		ext = append(ext, r.held)
		ext = append(ext, samples...)
	}
	n := int64(len(ext))
	if n == 0 {
		return nil, nil
	}

	in, out := int64(r.inRate), int64(r.outRate)
	res := make([]float32, 0, (n*out)/in+1)

	for {
		i := r.pos / out
		if i+1 >= n {
			break
		}
		frac := float32(r.pos%out) / float32(out)
		s0, s1 := ext[i], ext[i+1]
		res = append(res, s0+(s1-s0)*frac)
		r.pos += in
	}

	if isLast {
		for r.pos/out < n {
			res = append(res, ext[n-1])
			r.pos += in
		}
		r.clearHistory()
		return res, nil
	}

	r.held = ext[n-1]
	r.hasHeld = true
	r.pos -= (n - 1) * out
	return res, nil
}

// Reset drops the interpolation history and unbinds the rate pair.
func (r *Resampler) Reset() {
	r.clearHistory()
	r.bound = false
	r.inRate, r.outRate = 0, 0
	r.last = time.Time{}
}

// Rates returns the bound rate pair, or zeros when unbound.
func (r *Resampler) Rates() (inRate, outRate int) { return r.inRate, r.outRate }

func (r *Resampler) clearHistory() {
	r.held = 0
	r.hasHeld = false
	r.pos = 0
}
