package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// S16LEToFloat32 converts signed 16-bit little-endian PCM to float32 samples
// in [-1, 1). A trailing odd byte is ignored.
func S16LEToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// F32LEToFloat32 reinterprets little-endian IEEE-754 bytes as float32
// samples. Trailing bytes that do not form a whole sample are ignored.
func F32LEToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 4
	out := make([]float32, n)
	for i := range n {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
	}
	return out
}

// Downmix averages interleaved multi-channel samples into mono. With one
// channel the input is returned unchanged.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Clip clamps samples to [-1, 1] in place and replaces NaN with silence.
func Clip(samples []float32) {
	for i, v := range samples {
		switch {
		case v != v:
			samples[i] = 0
		case v > 1:
			samples[i] = 1
		case v < -1:
			samples[i] = -1
		}
	}
}

// Float32ToInt scales float samples to signed integers of the given bit
// depth, clamping to the representable range. It is the inverse of the
// decoders above for 16-bit output and feeds WAV encoders.
func Float32ToInt(samples []float32, bitDepth int) []int {
	maxVal := float64(int64(1)<<(bitDepth-1)) - 1
	minVal := -maxVal - 1
	out := make([]int, len(samples))
	for i, v := range samples {
		f := math.Round(float64(v) * (maxVal + 1))
		if f > maxVal {
			f = maxVal
		} else if f < minVal {
			f = minVal
		}
		out[i] = int(f)
	}
	return out
}

// Float32ToS16LE encodes float samples as signed 16-bit little-endian PCM.
func Float32ToS16LE(samples []float32) []byte {
	ints := Float32ToInt(samples, 16)
	out := make([]byte, len(ints)*2)
	for i, v := range ints {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Decode converts one raw chunk to mono float32 samples at the chunk's own
// rate: decode, downmix, clip. The data length must be a whole number of
// frames.
func Decode(c Chunk) ([]float32, error) {
	if err := c.Format.Validate(); err != nil {
		return nil, err
	}
	if fb := c.Format.FrameBytes(); len(c.Data)%fb != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of the %d-byte frame (%s)",
			ErrMalformedChunk, len(c.Data), fb, c.Format)
	}

	var samples []float32
	switch c.Format.Encoding {
	case EncodingF32LE:
		samples = F32LEToFloat32(c.Data)
	default:
		samples = S16LEToFloat32(c.Data)
	}
	samples = Downmix(samples, c.Format.Channels)
	Clip(samples)
	return samples, nil
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
