package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/livescribe/internal/app"
	"github.com/MrWong99/livescribe/internal/stream"
	"github.com/MrWong99/livescribe/pkg/audio"
	"github.com/MrWong99/livescribe/pkg/segment"
)

// feedChunk is how much audio the offline commands hand the processor at
// once.
const feedChunk = 100 * time.Millisecond

type transcribeFlags struct {
	segmentsDir string
}

func newTranscribeCmd(global *globalFlags) *cobra.Command {
	flags := &transcribeFlags{}
	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>...",
		Short: "Segment and transcribe WAV files offline",
		Long: `transcribe runs each WAV file through the same pipeline as a live
stream: resampling to the configured rate, utterance detection, segment
writing, transcription and translation. Each file is its own session.
Records are printed to stdout as JSON lines in utterance order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd.Context(), cmd.OutOrStdout(), global.configPath, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.segmentsDir, "segments-dir", "", "override writer.dir (the directory is purged)")
	return cmd
}

// fileRecord is one output line of the transcribe command.
type fileRecord struct {
	File string `json:"file"`
	stream.Record
}

func runTranscribe(ctx context.Context, out io.Writer, configPath string, flags *transcribeFlags, files []string) error {
	e, err := setup(configPath)
	if err != nil {
		return err
	}
	defer e.close()
	if flags.segmentsDir != "" {
		e.cfg.Writer.Dir = flags.segmentsDir
	}
	if ctx == nil {
		ctx = context.Background()
	}

	application, err := app.New(ctx, e.cfg, e.providers)
	if err != nil {
		return err
	}
	p := application.Processor()

	pr := newRecordPrinter(out, p)
	pr.start()

	var feedErr error
	for _, path := range files {
		if feedErr = transcribeFile(ctx, p, path, e.cfg.Pipeline.Backlog, pr); feedErr != nil {
			break
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout+e.cfg.Pipeline.CallTimeout)
	defer cancel()
	shutdownErr := application.Shutdown(shutdownCtx)
	pr.stop()
	if feedErr != nil {
		return feedErr
	}
	return shutdownErr
}

// transcribeFile feeds one file as its own session.
func transcribeFile(ctx context.Context, p *stream.Processor, path string, backlog int, pr *recordPrinter) error {
	samples, rate, err := segment.ReadFile(path)
	if err != nil {
		return err
	}
	if want := p.SampleRate(); rate != want {
		if samples, err = audio.NewResampler().Resample(samples, rate, want, true); err != nil {
			return fmt.Errorf("resample %s: %w", path, err)
		}
	}

	id, err := p.Start()
	if err != nil {
		return err
	}
	pr.label(id, path)
	slog.Info("transcribing file", "file", path, "session_id", id, "seconds", float64(len(samples))/float64(p.SampleRate()))

	step := int(feedChunk.Seconds() * float64(p.SampleRate()))
	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(step, len(samples))
		if err := p.ProcessChunk(samples[:n]); err != nil {
			return err
		}
		samples = samples[n:]
		waitForBacklog(ctx, p, backlog/2)
	}
	p.Flush()
	return p.Stop()
}

// waitForBacklog blocks while more than limit utterances wait for the
// writer, so offline input faster than real time does not pile up in
// memory.
func waitForBacklog(ctx context.Context, p *stream.Processor, limit int) {
	for p.Status().Backlog > limit && ctx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}
}

// recordPrinter writes released records as JSON lines until stopped, then
// drains whatever is left.
type recordPrinter struct {
	enc *json.Encoder
	p   *stream.Processor

	mu    sync.Mutex
	files map[string]string

	done    chan struct{}
	stopped chan struct{}
}

func newRecordPrinter(out io.Writer, p *stream.Processor) *recordPrinter {
	return &recordPrinter{
		enc:     json.NewEncoder(out),
		p:       p,
		files:   make(map[string]string),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// label attaches a source name to every record of a session.
func (pr *recordPrinter) label(sessionID, file string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.files[sessionID] = file
}

func (pr *recordPrinter) start() {
	go func() {
		defer close(pr.stopped)
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			pr.drain()
			select {
			case <-pr.done:
				pr.drain()
				return
			case <-pr.p.Ready():
			case <-ticker.C:
			}
		}
	}()
}

func (pr *recordPrinter) stop() {
	close(pr.done)
	<-pr.stopped
}

func (pr *recordPrinter) drain() {
	for {
		rec, ok := pr.p.PollTranscript()
		if !ok {
			return
		}
		pr.mu.Lock()
		file := pr.files[rec.SessionID]
		pr.mu.Unlock()
		if err := pr.enc.Encode(fileRecord{File: file, Record: rec}); err != nil {
			slog.Warn("write record failed", "seq", rec.Seq, "err", err)
		}
	}
}
