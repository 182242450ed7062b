package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/livescribe/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	wav := audio.EncodeWAV([]float32{0, 0.5, -0.5}, 16000)
	if len(wav) != 44+6 {
		t.Fatalf("len = %d, want 50", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatal("missing RIFF/WAVE/data markers")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 6 {
		t.Errorf("data size = %d, want 6", got)
	}
	if got := int16(binary.LittleEndian.Uint16(wav[46:48])); got != 16384 {
		t.Errorf("second sample = %d, want 16384", got)
	}
}
