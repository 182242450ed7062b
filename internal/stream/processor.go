// Package stream turns a live mono audio stream into ordered transcript
// records.
//
// A [Processor] owns the energy segmenter and a small pipeline behind it.
// Finished utterances are handed off without blocking to a writer stage,
// which persists each one as a WAV segment, then to a pool of workers that
// transcribe and translate. Completed records are released strictly in
// speech order onto an unbounded queue that a single consumer polls.
//
// Ingest never waits on a model: a slow transcriber only grows the
// backlog. The backlog is unbounded, so every accepted utterance is
// eventually written and transcribed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/pkg/archive"
	"github.com/MrWong99/livescribe/pkg/audio"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	"github.com/MrWong99/livescribe/pkg/provider/translate"
	"github.com/MrWong99/livescribe/pkg/vad"
)

var (
	// ErrNotStarted is returned by ProcessChunk outside a session.
	ErrNotStarted = errors.New("stream: session not started")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("stream: processor closed")
)

// SegmentWriter persists utterances and reads them back for replay.
// *segment.Writer implements it.
type SegmentWriter interface {
	Write(samples []float32) (string, error)
	Read(ref string) ([]float32, int, error)
	Resolve(name string) (string, error)
	Count() int
}

// Archive receives every released record. *archive.Indexer and any
// archive.Store implement it.
type Archive interface {
	Append(ctx context.Context, e archive.Entry) error
}

// Deps are the collaborators of a Processor. Archive is optional.
type Deps struct {
	Transcriber stt.Transcriber
	Translator  translate.Translator
	Writer      SegmentWriter
	Archive     Archive

	// TranscriberName and TranslatorName label metrics and logs.
	TranscriberName string
	TranslatorName  string
}

// Record is one transcribed utterance.
type Record struct {
	SessionID string `json:"session_id"`
	// Seq increases by one per written segment over the processor's life.
	Seq uint64 `json:"seq"`
	// Ref is the path of the WAV segment.
	Ref string `json:"ref"`
	// Duration is the utterance length in seconds.
	Duration   float64   `json:"duration"`
	SourceText string    `json:"source_text"`
	TargetText string    `json:"target_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Status is a point-in-time view of a Processor.
type Status struct {
	SessionID        string     `json:"session_id,omitempty"`
	Started          bool       `json:"started"`
	State            string     `json:"state"`
	PendingSamples   int        `json:"pending_samples"`
	SilenceSamples   int        `json:"silence_samples"`
	UtteranceSamples int        `json:"utterance_samples"`
	Backlog          int        `json:"backlog"`
	Transcripts      int        `json:"transcripts"`
	SegmentsWritten  int        `json:"segments_written"`
	VAD              vad.Config `json:"vad"`
}

// Option configures a Processor.
type Option func(*Processor)

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithClock sets the time source for Record.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// utteranceJob travels from the segmenter to the writer stage.
type utteranceJob struct {
	sessionID string
	samples   []float32
	seconds   float64
}

// segmentJob travels from the writer stage to a worker.
type segmentJob struct {
	utteranceJob
	seq uint64
	ref string
}

// Processor is safe for concurrent use. ProcessChunk, Flush, Start, Stop and
// SetOptions serialize on one lock; chunks must still arrive in order from a
// single producer.
type Processor struct {
	cfg     Config
	deps    Deps
	metrics *observe.Metrics
	now     func() time.Time

	mu        sync.Mutex
	seg       *vad.Segmenter
	sessionID string
	closed    bool

	utterances *utteranceQueue
	segments   chan segmentJob
	results    *resultQueue

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds a Processor and starts its pipeline goroutines. Call Close to
// stop them.
func New(cfg Config, deps Deps, opts ...Option) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var missing []error
	if deps.Transcriber == nil {
		missing = append(missing, errors.New("stream: transcriber is required"))
	}
	if deps.Translator == nil {
		missing = append(missing, errors.New("stream: translator is required"))
	}
	if deps.Writer == nil {
		missing = append(missing, errors.New("stream: segment writer is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}
	if deps.TranscriberName == "" {
		deps.TranscriberName = "stt"
	}
	if deps.TranslatorName == "" {
		deps.TranslatorName = "translate"
	}

	p := &Processor{
		cfg:        cfg,
		deps:       deps,
		now:        time.Now,
		utterances: newUtteranceQueue(),
		segments:   make(chan segmentJob, cfg.Workers),
		results:    newResultQueue(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	seg, err := vad.NewSegmenter(cfg.VAD, p.onUtterance)
	if err != nil {
		return nil, err
	}
	p.seg = seg

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.group = &errgroup.Group{}
	p.group.Go(p.runWriter)
	for range cfg.Workers {
		p.group.Go(p.runWorker)
	}
	return p, nil
}

// Start begins a new session and returns its ID. Starting while a session
// is active replaces it; the segmenter is reset either way.
func (p *Processor) Start() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	if p.sessionID == "" {
		p.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	p.seg.Reset()
	p.sessionID = uuid.NewString()
	slog.Info("stream session started", "session_id", p.sessionID)
	return p.sessionID, nil
}

// Stop ends the session. The in-progress utterance is discarded unless
// FlushOnStop is set. Records already handed off still complete.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.sessionID == "" {
		return ErrNotStarted
	}
	if p.cfg.FlushOnStop {
		p.seg.Flush()
	}
	p.seg.Reset()
	slog.Info("stream session stopped", "session_id", p.sessionID)
	p.sessionID = ""
	p.metrics.ActiveSessions.Add(context.Background(), -1)
	return nil
}

// SessionID returns the active session ID or "".
func (p *Processor) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// ProcessChunk feeds canonical-rate mono samples to the segmenter. It does
// no I/O and never waits on the pipeline. An empty chunk is a no-op.
func (p *Processor) ProcessChunk(samples []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.sessionID == "" {
		return ErrNotStarted
	}
	if len(samples) == 0 {
		return nil
	}
	p.metrics.AudioSamples.Add(context.Background(), int64(len(samples)))
	p.seg.ProcessChunk(samples)
	return nil
}

// Flush finalizes the in-progress utterance, if any, using the silence
// already seen as its trailing context. It reports whether an utterance
// was emitted; the minimum duration filter still applies to it.
func (p *Processor) Flush() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.sessionID == "" {
		return false
	}
	return p.seg.Flush()
}

// SetOptions reconfigures the segmenter and clears its buffers. An invalid
// config leaves the processor unchanged.
func (p *Processor) SetOptions(cfg vad.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.seg.SetOptions(cfg); err != nil {
		return err
	}
	p.cfg.VAD = cfg
	slog.Info("segmenter reconfigured",
		"energy_threshold", cfg.EnergyThreshold,
		"min_silence", cfg.MinSilenceDuration,
		"frame", cfg.FrameDuration)
	return nil
}

// Options returns the active segmenter configuration.
func (p *Processor) Options() vad.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seg.Config()
}

// SampleRate is the canonical rate ProcessChunk expects.
func (p *Processor) SampleRate() int { return p.Options().SampleRate }

// onUtterance runs under p.mu from inside the segmenter.
func (p *Processor) onUtterance(u vad.Utterance) {
	ctx := context.Background()
	if u.Duration() < p.cfg.MinUtteranceDuration {
		p.metrics.RecordUtterance(ctx, observe.OutcomeDiscarded)
		slog.Debug("utterance too short, discarded", "seconds", u.Seconds())
		return
	}
	job := utteranceJob{sessionID: p.sessionID, samples: u.Samples, seconds: u.Seconds()}
	n := p.utterances.Push(job)
	p.metrics.RecordUtterance(ctx, observe.OutcomeAccepted)
	p.metrics.UtteranceDuration.Record(ctx, job.seconds)
	if n == p.cfg.Backlog+1 {
		slog.Warn("transcription backlog above limit, falling behind live audio",
			"session_id", p.sessionID, "backlog", n, "limit", p.cfg.Backlog)
	}
}

// runWriter persists utterances in segmenter order and numbers them.
func (p *Processor) runWriter() error {
	defer close(p.segments)
	var seq uint64
	for {
		job, ok := p.utterances.Next(p.ctx)
		if !ok {
			return nil
		}
		ref, err := p.deps.Writer.Write(job.samples)
		if err != nil {
			p.metrics.SegmentWriteErrors.Add(p.ctx, 1)
			slog.Error("segment write failed, utterance lost",
				"session_id", job.sessionID, "seconds", job.seconds, "err", err)
			continue
		}
		select {
		case p.segments <- segmentJob{utteranceJob: job, seq: seq, ref: ref}:
			seq++
		case <-p.ctx.Done():
			return nil
		}
	}
}

func (p *Processor) runWorker() error {
	for job := range p.segments {
		ctx, span := observe.StartSpan(observe.WithSession(p.ctx, job.sessionID), "stream.utterance",
			trace.WithAttributes(
				attribute.String("session_id", job.sessionID),
				attribute.Int64("seq", int64(job.seq)),
				attribute.Float64("seconds", job.seconds),
			))
		src, tgt := p.TranscribeSegment(ctx, job.samples)
		span.End()

		rec := Record{
			SessionID:  job.sessionID,
			Seq:        job.seq,
			Ref:        job.ref,
			Duration:   job.seconds,
			SourceText: src,
			TargetText: tgt,
			CreatedAt:  p.now(),
		}
		released := p.results.Complete(rec)
		if n := len(released); n > 0 {
			p.metrics.TranscriptsPending.Add(p.ctx, int64(n))
		}
		p.archive(released)
	}
	return nil
}

func (p *Processor) archive(records []Record) {
	if p.deps.Archive == nil {
		return
	}
	for _, r := range records {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.cfg.CallTimeout)
		err := p.deps.Archive.Append(ctx, archive.Entry{
			SessionID:  r.SessionID,
			Seq:        r.Seq,
			Ref:        filepath.Base(r.Ref),
			Duration:   time.Duration(r.Duration * float64(time.Second)),
			SourceLang: p.cfg.SourceLang,
			TargetLang: p.cfg.TargetLang,
			SourceText: r.SourceText,
			TargetText: r.TargetText,
			CreatedAt:  r.CreatedAt,
		})
		cancel()
		if err != nil {
			slog.Warn("archive append failed", "session_id", r.SessionID, "seq", r.Seq, "err", err)
		}
	}
}

// TranscribeSegment transcribes and translates samples without writing a
// segment or queueing a record. Model failures degrade to "".
func (p *Processor) TranscribeSegment(ctx context.Context, samples []float32) (source, target string) {
	source = p.call(ctx, "stt", p.deps.TranscriberName, p.metrics.STTDuration, func(ctx context.Context) (string, error) {
		return p.deps.Transcriber.Transcribe(ctx, samples)
	})
	if source == "" {
		return "", ""
	}
	target = p.call(ctx, "translate", p.deps.TranslatorName, p.metrics.TranslateDuration, func(ctx context.Context) (string, error) {
		return p.deps.Translator.Translate(ctx, source, p.cfg.SourceLang, p.cfg.TargetLang)
	})
	return source, target
}

func (p *Processor) call(ctx context.Context, kind, provider string, latency metric.Float64Histogram, fn func(context.Context) (string, error)) string {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "stream."+kind, trace.WithAttributes(attribute.String("provider", provider)))
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)
	latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.RecordProviderRequest(ctx, provider, kind, "error")
		p.metrics.RecordProviderError(ctx, provider, kind)
		observe.Logger(ctx).Warn("model call failed, using empty text", "kind", kind, "provider", provider, "err", err)
		return ""
	}
	p.metrics.RecordProviderRequest(ctx, provider, kind, "ok")
	return out
}

// TranscribeRef reads a written segment back and transcribes it like
// TranscribeSegment. ref is a segment name such as "chunk-3" or the path
// returned in Record.Ref; only files inside the writer's directory are
// accepted.
func (p *Processor) TranscribeRef(ctx context.Context, ref string) (source, target string, err error) {
	path, err := p.deps.Writer.Resolve(filepath.Base(ref))
	if err != nil {
		return "", "", err
	}
	samples, rate, err := p.deps.Writer.Read(path)
	if err != nil {
		return "", "", fmt.Errorf("stream: read segment: %w", err)
	}
	if want := p.SampleRate(); rate != want {
		r := audio.NewResampler()
		if samples, err = r.Resample(samples, rate, want, true); err != nil {
			return "", "", fmt.Errorf("stream: resample segment: %w", err)
		}
	}
	source, target = p.TranscribeSegment(ctx, samples)
	return source, target, nil
}

// PollTranscript removes and returns the oldest released record. It never
// blocks.
func (p *Processor) PollTranscript() (Record, bool) {
	r, ok := p.results.Poll()
	if ok {
		p.metrics.TranscriptsPending.Add(context.Background(), -1)
	}
	return r, ok
}

// Pending is the number of records ready to be polled.
func (p *Processor) Pending() int { return p.results.Len() }

// Ready is signalled whenever new records become pollable. Consumers that
// push records, such as a WebSocket, wait on it instead of spinning.
func (p *Processor) Ready() <-chan struct{} { return p.results.Ready() }

// Status returns a snapshot for diagnostics.
func (p *Processor) Status() Status {
	p.mu.Lock()
	st := Status{
		SessionID:        p.sessionID,
		Started:          p.sessionID != "",
		State:            p.seg.State().String(),
		PendingSamples:   p.seg.PendingLen(),
		SilenceSamples:   p.seg.SilenceLen(),
		UtteranceSamples: p.seg.UtteranceLen(),
		VAD:              p.seg.Config(),
	}
	p.mu.Unlock()
	st.Backlog = p.utterances.Len()
	st.Transcripts = p.results.Len()
	st.SegmentsWritten = p.deps.Writer.Count()
	return st
}

// Close stops accepting audio and waits for every handed-off utterance to
// be written, transcribed and released. If ctx ends first, in-flight model
// calls are cancelled and ctx's error is returned once the goroutines exit.
func (p *Processor) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.sessionID != "" {
		p.sessionID = ""
		p.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	p.utterances.Close()
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.cancel()
		return err
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
