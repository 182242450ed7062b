// Package app wires the livescribe subsystems into a running server.
//
// New builds the segment writer, the optional transcript archive, the
// optional glossary correction and the stream processor from the config;
// Handler exposes them over HTTP and WebSocket; Run serves until the context ends; Shutdown drains the
// pipeline and closes everything in reverse order.
//
// Tests inject doubles through functional options (WithArchive,
// WithMetrics, ...). Anything not injected is created from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/livescribe/internal/config"
	"github.com/MrWong99/livescribe/internal/glossary"
	"github.com/MrWong99/livescribe/internal/health"
	"github.com/MrWong99/livescribe/internal/observe"
	"github.com/MrWong99/livescribe/internal/stream"
	"github.com/MrWong99/livescribe/pkg/archive"
	"github.com/MrWong99/livescribe/pkg/archive/postgres"
	"github.com/MrWong99/livescribe/pkg/audio"
	"github.com/MrWong99/livescribe/pkg/provider/embeddings"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	"github.com/MrWong99/livescribe/pkg/provider/translate"
	"github.com/MrWong99/livescribe/pkg/segment"
)

// Providers holds the model backends built by main from the config
// registry. Embeddings may be nil.
type Providers struct {
	STT        stt.Transcriber
	STTName    string
	Translator translate.Translator
	// TranslatorName labels metrics, like STTName.
	TranslatorName string
	Embeddings     embeddings.Provider
}

// App owns the lifetime of every subsystem.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar

	writer    *segment.Writer
	store     archive.Store
	indexer   *archive.Indexer
	processor *stream.Processor

	// producer admits one audio source at a time: a WebSocket stream
	// holds it for its lifetime, POST /v1/audio for one chunk.
	producer   chan struct{}
	normalizer *audio.Normalizer

	server *http.Server

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option configures an App.
type Option func(*App)

// WithArchive injects a transcript store instead of connecting to Postgres.
func WithArchive(s archive.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics replaces [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler replaces promhttp.Handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets config reloads change the level of the default logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App. cfg must have defaults applied and be valid.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.Translator == nil {
		return nil, errors.New("app: stt and translate providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		producer:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	w, err := segment.New(cfg.Writer.Dir,
		segment.WithPrefix(cfg.Writer.Prefix),
		segment.WithSampleRate(cfg.Audio.SampleRate),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init writer: %w", err)
	}
	a.writer = w
	slog.Info("segment writer ready", "dir", w.Dir(), "prefix", cfg.Writer.Prefix)

	if err := a.initArchive(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	deps := stream.Deps{
		Transcriber:     providers.STT,
		Translator:      providers.Translator,
		Writer:          w,
		TranscriberName: providers.STTName,
		TranslatorName:  providers.TranslatorName,
	}
	if g := cfg.Glossary; len(g.Terms) > 0 {
		gl := glossary.New(g.Terms,
			glossary.WithPhoneticThreshold(g.PhoneticThreshold),
			glossary.WithFuzzyThreshold(g.FuzzyThreshold),
		)
		deps.Transcriber = gl.Wrap(providers.STT)
		slog.Info("glossary correction enabled", "terms", gl.Len())
	}
	if a.indexer != nil {
		deps.Archive = a.indexer
	}
	a.processor, err = stream.New(cfg.Stream(), deps, stream.WithMetrics(a.metrics))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("app: init processor: %w", err)
	}

	a.normalizer = a.newNormalizer()
	return a, nil
}

// initArchive connects the Postgres archive when configured. An injected
// store takes precedence.
func (a *App) initArchive(ctx context.Context) error {
	if a.store == nil {
		dsn := a.cfg.Archive.PostgresDSN
		if dsn == "" {
			slog.Info("archive disabled: archive.postgres_dsn is empty")
			return nil
		}
		dims := a.cfg.Archive.EmbeddingDimensions
		if dims == 0 && a.providers.Embeddings != nil {
			dims = a.providers.Embeddings.Dimensions()
		}
		st, err := postgres.New(ctx, dsn, dims)
		if err != nil {
			return err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
	}
	a.indexer = archive.NewIndexer(a.store, a.providers.Embeddings)
	slog.Info("transcript archive enabled", "embeddings", a.providers.Embeddings != nil)
	return nil
}

func (a *App) newNormalizer() *audio.Normalizer {
	return audio.NewNormalizer(a.cfg.Audio.SampleRate, audio.WithIdleReset(a.cfg.Audio.ResampleIdleReset))
}

// Processor returns the stream processor.
func (a *App) Processor() *stream.Processor { return a.processor }

// Handler returns the full HTTP API wrapped in [observe.Middleware].
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerSessionRoutes(mux)
	a.registerStreamRoute(mux)
	a.registerArchiveRoutes(mux)

	checks := []health.Checker{health.Dir("writer", a.writer.Dir())}
	if a.store != nil {
		checks = append(checks, health.Ping("archive", a.store))
	}
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", a.metricsHandler)

	return observe.Middleware(a.metrics)(mux)
}

// Run serves the API on cfg.Server.ListenAddr until ctx is done, then
// returns ctx's error. Call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		errCh <- err
	}()
	slog.Info("http server listening", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyConfig applies the live-reloadable part of a config change and logs
// the rest.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VADChanged {
		if err := a.processor.SetOptions(d.NewVAD); err != nil {
			slog.Warn("config reload: segmenter options rejected", "err", err)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config reload: some changes need a restart", "sections", d.RestartRequired)
	}
}

// Shutdown stops the HTTP server, drains the pipeline and runs the closers.
// If ctx expires, in-flight model calls are cancelled and the remaining
// closers still run.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
		if err := a.processor.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("processor close: %w", err))
		}
		if n := a.processor.Pending(); n > 0 {
			slog.Warn("transcripts never polled", "count", n)
		}
		a.close()
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
