package vad_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/MrWong99/livescribe/pkg/vad"
)

// ---- helpers ----------------------------------------------------------------

const testRate = 16000

// testConfig mirrors the stream processor defaults: 30 ms frames, RMS 0.01
// and 1.5 s of trailing silence (overlap 0.75 s).
func testConfig() vad.Config {
	return vad.Config{
		SampleRate:         testRate,
		FrameDuration:      30 * time.Millisecond,
		EnergyThreshold:    0.01,
		MinSilenceDuration: 1500 * time.Millisecond,
	}
}

func seconds(d float64) int { return int(d * testRate) }

// silence returns n zero samples.
func silence(n int) []float32 { return make([]float32, n) }

// speech returns n samples of a 440 Hz sine with amplitude 0.5 (RMS ≈ 0.35).
func speech(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/testRate))
	}
	return out
}

// noise returns n samples of uniform noise well below the 0.01 threshold.
func noise(n int, r *rand.Rand) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32((r.Float64()*2 - 1) * 0.005)
	}
	return out
}

func concat(parts ...[]float32) []float32 {
	var out []float32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// collector records every emitted utterance.
type collector struct {
	utts []vad.Utterance
}

func (c *collector) handle(u vad.Utterance) { c.utts = append(c.utts, u) }

func mustSegmenter(t *testing.T, cfg vad.Config, c *collector) *vad.Segmenter {
	t.Helper()
	var fn func(vad.Utterance)
	if c != nil {
		fn = c.handle
	}
	s, err := vad.NewSegmenter(cfg, fn)
	if err != nil {
		t.Fatalf("NewSegmenter: %v", err)
	}
	return s
}

// feedInChunks splits samples into consecutive chunks of the given sizes
// (cycled) and feeds them to s.
func feedInChunks(s *vad.Segmenter, samples []float32, sizes []int) {
	for i, off := 0, 0; off < len(samples); i++ {
		n := sizes[i%len(sizes)]
		end := min(off+n, len(samples))
		s.ProcessChunk(samples[off:end])
		off = end
	}
}

// ---- config -----------------------------------------------------------------

func TestConfig_DerivedSizes(t *testing.T) {
	cfg := testConfig()
	if got := cfg.FrameSamples(); got != 480 {
		t.Errorf("FrameSamples = %d, want 480", got)
	}
	if got := cfg.MinSilenceSamples(); got != 24000 {
		t.Errorf("MinSilenceSamples = %d, want 24000", got)
	}
	if got := cfg.OverlapSamples(); got != 12000 {
		t.Errorf("OverlapSamples = %d, want 12000", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*vad.Config)
	}{
		{"zero sample rate", func(c *vad.Config) { c.SampleRate = 0 }},
		{"zero frame", func(c *vad.Config) { c.FrameDuration = 0 }},
		{"sub-sample frame", func(c *vad.Config) { c.FrameDuration = time.Microsecond }},
		{"negative threshold", func(c *vad.Config) { c.EnergyThreshold = -1 }},
		{"zero min silence", func(c *vad.Config) { c.MinSilenceDuration = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, vad.ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
	if err := vad.DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}
}

// ---- framing ----------------------------------------------------------------

func TestProcessChunk_ChunkingInvariance(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	input := concat(noise(seconds(0.4), r), speech(seconds(1.1)), silence(seconds(1.7)), speech(seconds(0.7)), noise(seconds(0.33), r))
	n := int64(len(input))

	splits := [][]int{
		{len(input)},
		{1},
		{479, 481},
		{7, 1000, 13, 4096},
		{8000},
	}

	var reference []vad.Utterance
	for i, sizes := range splits {
		c := &collector{}
		s := mustSegmenter(t, testConfig(), c)
		feedInChunks(s, input, sizes)

		if got := s.Consumed() + int64(s.PendingLen()); got != n {
			t.Fatalf("split %v: consumed+pending = %d, want %d", sizes, got, n)
		}
		if s.PendingLen() >= testConfig().FrameSamples() {
			t.Fatalf("split %v: pending %d not below one frame", sizes, s.PendingLen())
		}
		if i == 0 {
			reference = c.utts
			continue
		}
		if len(c.utts) != len(reference) {
			t.Fatalf("split %v: %d utterances, want %d", sizes, len(c.utts), len(reference))
		}
		for j := range reference {
			if len(c.utts[j].Samples) != len(reference[j].Samples) {
				t.Errorf("split %v: utterance %d has %d samples, want %d", sizes, j, len(c.utts[j].Samples), len(reference[j].Samples))
			}
		}
	}
	if len(reference) != 1 {
		t.Fatalf("expected exactly one finalised utterance, got %d", len(reference))
	}
}

func TestProcessChunk_RandomSplitsKeepSampleAccounting(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))
	s := mustSegmenter(t, testConfig(), nil)
	var total int64
	for range 200 {
		n := r.IntN(2000)
		s.ProcessChunk(speech(n))
		total += int64(n)
		if got := s.Consumed() + int64(s.PendingLen()); got != total {
			t.Fatalf("consumed+pending = %d, want %d", got, total)
		}
	}
}

func TestProcessChunk_EmptyChunkIsNoop(t *testing.T) {
	s := mustSegmenter(t, testConfig(), nil)
	s.ProcessChunk(silence(100))
	s.ProcessChunk(nil)
	s.ProcessChunk([]float32{})
	if s.PendingLen() != 100 || s.Consumed() != 0 {
		t.Fatalf("pending=%d consumed=%d, want 100/0", s.PendingLen(), s.Consumed())
	}
}

func TestProcessChunk_DoesNotRetainCallerSlice(t *testing.T) {
	c := &collector{}
	s := mustSegmenter(t, testConfig(), c)
	chunk := speech(500)
	s.ProcessChunk(chunk)
	for i := range chunk {
		chunk[i] = 0
	}
	s.ProcessChunk(silence(seconds(2)))
	if len(c.utts) != 1 {
		t.Fatalf("got %d utterances, want 1", len(c.utts))
	}
	if vad.RMS(c.utts[0].Samples[:480]) == 0 {
		t.Fatal("utterance content was mutated through the caller's slice")
	}
}

// ---- classification ---------------------------------------------------------

func TestThresholdBoundary(t *testing.T) {
	frame := make([]float32, 480)
	for i := range frame {
		frame[i] = 0.25
	}
	level := vad.RMS(frame)

	t.Run("equal is silence", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnergyThreshold = level
		s := mustSegmenter(t, cfg, nil)
		s.ProcessChunk(frame)
		if s.State() != vad.StateSilence {
			t.Fatalf("state = %s, want silence", s.State())
		}
	})

	t.Run("just above is speech", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnergyThreshold = math.Nextafter(level, 0)
		s := mustSegmenter(t, cfg, nil)
		s.ProcessChunk(frame)
		if s.State() != vad.StateSpeech {
			t.Fatalf("state = %s, want speech", s.State())
		}
	})
}

func TestRMS(t *testing.T) {
	if got := vad.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := vad.RMS([]float32{-0.5, 0.5, -0.5, 0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}

// ---- buffers ----------------------------------------------------------------

func TestSilenceRingBuffer_NeverExceedsOverlap(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	cfg := testConfig()
	s := mustSegmenter(t, cfg, nil)
	overlap := cfg.OverlapSamples()

	input := concat(noise(seconds(2), r), speech(seconds(0.8)), silence(seconds(3.1)), speech(seconds(0.1)), silence(seconds(2.5)))
	for off := 0; off < len(input); {
		n := min(1+r.IntN(3000), len(input)-off)
		s.ProcessChunk(input[off : off+n])
		off += n
		if got := s.SilenceLen(); got > overlap {
			t.Fatalf("silence buffer %d exceeds overlap %d", got, overlap)
		}
	}
}

func TestSilenceRingBuffer_KeepsNewestSamples(t *testing.T) {
	cfg := testConfig()
	s := mustSegmenter(t, cfg, nil)
	s.ProcessChunk(silence(seconds(2)))
	if got := s.SilenceLen(); got != cfg.OverlapSamples() {
		t.Fatalf("SilenceLen = %d, want %d", got, cfg.OverlapSamples())
	}
}

// ---- end to end -------------------------------------------------------------

func TestScenario_SubThresholdNoiseEmitsNothing(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	c := &collector{}
	s := mustSegmenter(t, testConfig(), c)
	feedInChunks(s, noise(seconds(1), r), []int{8000})
	if len(c.utts) != 0 {
		t.Fatalf("got %d utterances, want 0", len(c.utts))
	}
	if s.State() != vad.StateSilence {
		t.Fatalf("state = %s, want silence", s.State())
	}
}

func TestScenario_SingleUtteranceWithOverlap(t *testing.T) {
	cfg := testConfig()
	c := &collector{}
	s := mustSegmenter(t, cfg, c)

	input := concat(silence(seconds(0.2)), speech(seconds(1.0)), silence(seconds(2.0)))
	feedInChunks(s, input, []int{8000})

	if len(c.utts) != 1 {
		t.Fatalf("got %d utterances, want 1", len(c.utts))
	}
	u := c.utts[0]
	overlap := cfg.OverlapSamples()
	// Leading context is capped by the silence actually seen (0.2 s < overlap).
	want := float64(min(seconds(0.2), overlap)+seconds(1.0)+overlap) / testRate
	frame := float64(cfg.FrameSamples()) / testRate
	if math.Abs(u.Seconds()-want) > frame {
		t.Fatalf("duration = %.3fs, want %.3fs ± %.3fs", u.Seconds(), want, frame)
	}
	if u.SampleRate != testRate {
		t.Fatalf("SampleRate = %d, want %d", u.SampleRate, testRate)
	}
	if d := u.Duration(); math.Abs(d.Seconds()-u.Seconds()) > 1e-6 {
		t.Fatalf("Duration() = %s disagrees with Seconds() = %f", d, u.Seconds())
	}
	if s.State() != vad.StateSilence {
		t.Fatalf("state = %s, want silence", s.State())
	}
}

func TestScenario_LeadingContextCappedAtOverlap(t *testing.T) {
	cfg := testConfig()
	c := &collector{}
	s := mustSegmenter(t, cfg, c)

	s.ProcessChunk(concat(silence(seconds(3)), speech(seconds(1.2)), silence(seconds(1.6))))
	if len(c.utts) != 1 {
		t.Fatalf("got %d utterances, want 1", len(c.utts))
	}
	want := 2*cfg.OverlapSamples() + seconds(1.2)
	if got := len(c.utts[0].Samples); abs(got-want) > cfg.FrameSamples() {
		t.Fatalf("utterance has %d samples, want %d ± one frame", got, want)
	}
}

func TestScenario_OnsetFrameAppearsOnce(t *testing.T) {
	cfg := testConfig()
	c := &collector{}
	s := mustSegmenter(t, cfg, c)
	frame := cfg.FrameSamples()

	// Distinct levels per speech frame make a repeated frame visible.
	talk := make([]float32, 10*frame)
	for i := range talk {
		talk[i] = 0.1 + 0.05*float32(i/frame)
	}
	s.ProcessChunk(concat(silence(5*frame), talk))
	if !s.Flush() {
		t.Fatal("Flush reported no utterance")
	}
	if len(c.utts) != 1 {
		t.Fatalf("got %d utterances, want 1", len(c.utts))
	}
	got := c.utts[0].Samples
	if len(got) != 15*frame {
		t.Fatalf("utterance has %d samples, want %d", len(got), 15*frame)
	}
	for i, v := range got[:5*frame] {
		if v != 0 {
			t.Fatalf("leading context sample %d = %v, want 0", i, v)
		}
	}
	for i, v := range got[5*frame:] {
		if v != talk[i] {
			t.Fatalf("speech sample %d = %v, want %v", i, v, talk[i])
		}
	}
}

func TestScenario_BriefPauseDoesNotSplit(t *testing.T) {
	c := &collector{}
	s := mustSegmenter(t, testConfig(), c)
	s.ProcessChunk(concat(speech(seconds(0.6)), silence(seconds(1.0)), speech(seconds(0.6)), silence(seconds(1.6))))
	if len(c.utts) != 1 {
		t.Fatalf("got %d utterances, want 1 (pause shorter than min silence)", len(c.utts))
	}
}

func TestScenario_TwoUtterances(t *testing.T) {
	c := &collector{}
	s := mustSegmenter(t, testConfig(), c)
	s.ProcessChunk(concat(speech(seconds(0.6)), silence(seconds(1.6)), speech(seconds(0.9)), silence(seconds(1.6))))
	if len(c.utts) != 2 {
		t.Fatalf("got %d utterances, want 2", len(c.utts))
	}
}

// ---- flush / reset / reconfigure -------------------------------------------

func TestFlush_FinalisesUtteranceInProgress(t *testing.T) {
	cfg := testConfig()
	c := &collector{}
	s := mustSegmenter(t, cfg, c)

	s.ProcessChunk(concat(silence(seconds(0.3)), speech(seconds(0.9)), silence(seconds(0.5))))
	if len(c.utts) != 0 {
		t.Fatalf("utterance emitted before flush")
	}
	s.ProcessChunk(silence(100))
	pending := s.PendingLen()

	if !s.Flush() {
		t.Fatal("Flush() = false, want true")
	}
	if len(c.utts) != 1 {
		t.Fatalf("got %d utterances after flush, want 1", len(c.utts))
	}
	// Trailing silence (0.5 s) is below the overlap, so nothing is trimmed.
	want := seconds(0.3) + seconds(0.9) + seconds(0.5)
	if got := len(c.utts[0].Samples); abs(got-want) > cfg.FrameSamples() {
		t.Fatalf("flushed utterance has %d samples, want %d ± one frame", got, want)
	}
	if s.State() != vad.StateSilence || s.UtteranceLen() != 0 {
		t.Fatalf("after flush: state=%s utterance=%d", s.State(), s.UtteranceLen())
	}
	if s.PendingLen() != pending {
		t.Fatalf("flush changed pending buffer: %d -> %d", pending, s.PendingLen())
	}
}

func TestFlush_TrimsSilenceBeyondOverlap(t *testing.T) {
	cfg := testConfig()
	cfg.MinSilenceDuration = 3 * time.Second // overlap 1.5 s
	c := &collector{}
	s := mustSegmenter(t, cfg, c)

	s.ProcessChunk(concat(speech(seconds(0.6)), silence(seconds(2.4))))
	s.Flush()
	if len(c.utts) != 1 {
		t.Fatalf("got %d utterances, want 1", len(c.utts))
	}
	want := seconds(0.6) + cfg.OverlapSamples()
	if got := len(c.utts[0].Samples); abs(got-want) > cfg.FrameSamples() {
		t.Fatalf("got %d samples, want %d ± one frame", got, want)
	}
	if s.SilenceLen() == 0 || s.SilenceLen() > cfg.OverlapSamples() {
		t.Fatalf("silence buffer = %d after trimmed flush", s.SilenceLen())
	}
}

func TestFlush_InSilenceIsNoop(t *testing.T) {
	c := &collector{}
	s := mustSegmenter(t, testConfig(), c)
	s.ProcessChunk(silence(seconds(0.5)))
	if s.Flush() {
		t.Fatal("Flush() = true in silence")
	}
	if len(c.utts) != 0 {
		t.Fatal("flush in silence emitted an utterance")
	}
}

func TestReset_ClearsEverything(t *testing.T) {
	s := mustSegmenter(t, testConfig(), nil)
	s.ProcessChunk(concat(silence(seconds(0.3)), speech(seconds(0.5)), silence(77)))
	s.Reset()
	assertCleared(t, s)
}

func TestSetOptions_MidSessionClearsBuffers(t *testing.T) {
	c := &collector{}
	s := mustSegmenter(t, testConfig(), c)
	s.ProcessChunk(concat(silence(seconds(0.3)), speech(seconds(0.5)), silence(123)))
	if s.State() != vad.StateSpeech {
		t.Fatalf("precondition: state = %s, want speech", s.State())
	}

	next := testConfig()
	next.EnergyThreshold = 0.02
	next.MinSilenceDuration = time.Second
	if err := s.SetOptions(next); err != nil {
		t.Fatalf("SetOptions: %v", err)
	}
	assertCleared(t, s)
	if s.Config() != next {
		t.Fatalf("Config() = %+v, want %+v", s.Config(), next)
	}
	if len(c.utts) != 0 {
		t.Fatal("reconfiguration must discard, not emit, the utterance in progress")
	}
}

func TestSetOptions_InvalidLeavesStateUntouched(t *testing.T) {
	s := mustSegmenter(t, testConfig(), nil)
	s.ProcessChunk(concat(speech(seconds(0.5)), silence(55)))
	before := s.UtteranceLen()

	bad := testConfig()
	bad.SampleRate = 0
	if err := s.SetOptions(bad); !errors.Is(err, vad.ErrInvalidConfig) {
		t.Fatalf("SetOptions = %v, want ErrInvalidConfig", err)
	}
	if s.UtteranceLen() != before || s.State() != vad.StateSpeech {
		t.Fatal("invalid SetOptions modified the segmenter")
	}
}

func TestNewSegmenter_RejectsInvalidConfig(t *testing.T) {
	_, err := vad.NewSegmenter(vad.Config{}, nil)
	if !errors.Is(err, vad.ErrInvalidConfig) {
		t.Fatalf("NewSegmenter = %v, want ErrInvalidConfig", err)
	}
}

func TestEmittedUtteranceIsNotReused(t *testing.T) {
	c := &collector{}
	s := mustSegmenter(t, testConfig(), c)
	s.ProcessChunk(concat(speech(seconds(0.6)), silence(seconds(1.6))))
	if len(c.utts) != 1 {
		t.Fatalf("got %d utterances, want 1", len(c.utts))
	}
	snapshot := append([]float32(nil), c.utts[0].Samples...)

	s.ProcessChunk(concat(speech(seconds(0.7)), silence(seconds(1.6))))
	for i := range snapshot {
		if c.utts[0].Samples[i] != snapshot[i] {
			t.Fatalf("first utterance mutated at sample %d", i)
		}
	}
}

func TestUtteranceDuration(t *testing.T) {
	tests := []struct {
		samples int
		want    time.Duration
	}{
		{8000, 500 * time.Millisecond},
		{7999, 499937500 * time.Nanosecond},
		{0, 0},
	}
	for _, tt := range tests {
		u := vad.Utterance{Samples: make([]float32, tt.samples), SampleRate: testRate}
		if got := u.Duration(); got != tt.want {
			t.Errorf("Duration(%d samples) = %v, want %v", tt.samples, got, tt.want)
		}
	}
	if (vad.Utterance{Samples: make([]float32, 10)}).Duration() != 0 {
		t.Error("zero sample rate should give zero duration")
	}
}

func TestStateString(t *testing.T) {
	if vad.StateSilence.String() != "silence" || vad.StateSpeech.String() != "speech" {
		t.Fatal("unexpected State.String values")
	}
	if vad.State(9).String() != "unknown" {
		t.Fatal("out-of-range state should be unknown")
	}
}

func assertCleared(t *testing.T, s *vad.Segmenter) {
	t.Helper()
	if s.State() != vad.StateSilence {
		t.Errorf("state = %s, want silence", s.State())
	}
	if s.PendingLen() != 0 || s.SilenceLen() != 0 || s.UtteranceLen() != 0 {
		t.Errorf("buffers not cleared: pending=%d silence=%d utterance=%d",
			s.PendingLen(), s.SilenceLen(), s.UtteranceLen())
	}
	if s.Consumed() != 0 {
		t.Errorf("consumed = %d, want 0", s.Consumed())
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
