package audio

import (
	"fmt"
	"strings"
	"time"
)

// Encoding identifies the sample layout of raw PCM bytes.
type Encoding int

const (
	// EncodingS16LE is signed 16-bit little-endian PCM.
	EncodingS16LE Encoding = iota

	// EncodingF32LE is IEEE-754 32-bit little-endian float PCM in [-1, 1].
	EncodingF32LE
)

// String returns the wire name of the encoding ("s16le" or "f32le").
func (e Encoding) String() string {
	switch e {
	case EncodingS16LE:
		return "s16le"
	case EncodingF32LE:
		return "f32le"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// BytesPerSample returns the width of one sample of one channel.
func (e Encoding) BytesPerSample() int {
	if e == EncodingF32LE {
		return 4
	}
	return 2
}

// ParseEncoding maps a wire name to an [Encoding]. The empty string selects
// [EncodingS16LE].
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "s16le", "pcm16", "int16":
		return EncodingS16LE, nil
	case "f32le", "float32":
		return EncodingF32LE, nil
	default:
		return 0, fmt.Errorf("%w: unknown encoding %q", ErrInvalidFormat, s)
	}
}

// Format describes the sample rate, channel count and encoding of a raw
// audio stream.
type Format struct {
	SampleRate int
	Channels   int
	Encoding   Encoding
}

// Validate reports whether the format can be decoded.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channels %d", ErrInvalidFormat, f.Channels)
	}
	if f.Encoding != EncodingS16LE && f.Encoding != EncodingF32LE {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, f.Encoding)
	}
	return nil
}

// FrameBytes returns the size of one interleaved sample frame (all
// channels).
func (f Format) FrameBytes() int { return f.Channels * f.Encoding.BytesPerSample() }

// String returns a human-readable form, e.g. "48000Hz stereo s16le".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels) + " " + f.Encoding.String()
}

// Chunk is one block of raw interleaved PCM as it arrives from a client or
// capture device, before normalisation.
type Chunk struct {
	// Data holds interleaved samples in Format.Encoding.
	Data []byte

	// Format describes Data.
	Format Format

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}
