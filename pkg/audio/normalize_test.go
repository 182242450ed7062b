package audio_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/livescribe/pkg/audio"
)

func TestNormalizer_CanonicalPassthrough(t *testing.T) {
	n := audio.NewNormalizer(16000)
	c := audio.Chunk{
		Data:   samplesToBytes([]int16{0, 16384, -16384}),
		Format: audio.Format{SampleRate: 16000, Channels: 1},
	}
	got, err := n.Normalize(c, false)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	assertFloats(t, got, []float32{0, 0.5, -0.5}, 0)
}

func TestNormalizer_StereoDownsample(t *testing.T) {
	n := audio.NewNormalizer(16000)
	// Six stereo frames at 48 kHz, L == R, values 0..5 * 1024.
	var pcm []int16
	for i := range 6 {
		v := int16(i * 1024)
		pcm = append(pcm, v, v)
	}
	c := audio.Chunk{Data: samplesToBytes(pcm), Format: audio.Format{SampleRate: 48000, Channels: 2}}
	got, err := n.Normalize(c, true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	assertFloats(t, got, []float32{0, 3 * 1024 / 32768.0}, 1e-7)
}

func TestNormalizer_RejectsMalformed(t *testing.T) {
	n := audio.NewNormalizer(16000)
	c := audio.Chunk{Data: []byte{1, 2, 3}, Format: audio.Format{SampleRate: 16000, Channels: 1}}
	if _, err := n.Normalize(c, false); !errors.Is(err, audio.ErrMalformedChunk) {
		t.Fatalf("err = %v, want ErrMalformedChunk", err)
	}
	// A second malformed chunk still errors (the warning is only logged once).
	if _, err := n.Normalize(c, false); !errors.Is(err, audio.ErrMalformedChunk) {
		t.Fatalf("second err = %v, want ErrMalformedChunk", err)
	}
}

func TestNormalizer_RateChangeNeedsReset(t *testing.T) {
	n := audio.NewNormalizer(16000)
	mk := func(rate int) audio.Chunk {
		return audio.Chunk{Data: samplesToBytes(make([]int16, 96)), Format: audio.Format{SampleRate: rate, Channels: 1}}
	}
	if _, err := n.Normalize(mk(48000), false); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Normalize(mk(44100), false); !errors.Is(err, audio.ErrConfigurationMismatch) {
		t.Fatalf("err = %v, want ErrConfigurationMismatch", err)
	}
	n.Reset()
	if _, err := n.Normalize(mk(44100), false); err != nil {
		t.Fatalf("after Reset: %v", err)
	}
}
