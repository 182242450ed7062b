package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strconv"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/livescribe/internal/app"
	"github.com/MrWong99/livescribe/internal/config"
	"github.com/MrWong99/livescribe/internal/resilience"
	"github.com/MrWong99/livescribe/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/livescribe/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/livescribe/pkg/provider/embeddings/openai"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	"github.com/MrWong99/livescribe/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/livescribe/pkg/provider/stt/openai"
	"github.com/MrWong99/livescribe/pkg/provider/stt/whisper"
	"github.com/MrWong99/livescribe/pkg/provider/translate"
	"github.com/MrWong99/livescribe/pkg/provider/translate/anyllm"
	oatranslate "github.com/MrWong99/livescribe/pkg/provider/translate/openai"
)

// registerBuiltinProviders wires every built-in provider factory into reg.
// STT factories read "language" and "sample_rate" from entry.Options;
// buildProviders fills them from the languages and audio sections.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, whisper.WithSampleRate(rate))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		if n := optInt(entry.Options, "concurrency"); n > 0 {
			opts = append(opts, whisper.WithNativeConcurrency(n))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if kws := optStrings(entry.Options, "keywords"); len(kws) > 0 {
			opts = append(opts, deepgram.WithKeywords(parseKeywords(kws)...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		if prompt := optString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, oastt.WithPrompt(prompt))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, oastt.WithSampleRate(rate))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Translation ───────────────────────────────────────────────────────────

	reg.RegisterTranslator("openai", func(entry config.ProviderEntry) (translate.Translator, error) {
		var opts []oatranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatranslate.WithBaseURL(entry.BaseURL))
		}
		if t, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, oatranslate.WithTemperature(t))
		}
		return oatranslate.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other chat backend goes through any-llm-go: optional APIKey,
	// optional BaseURL.
	for _, name := range anyllm.Supported {
		if name == "openai" {
			continue
		}
		reg.RegisterTranslator(name, func(entry config.ProviderEntry) (translate.Translator, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, ollamaembed.WithDimensions(n))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	for _, kind := range []string{"stt", "translate", "embeddings"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the providers named in cfg. Fallback entries
// wrap the primary in a resilience chain. The returned closers release
// providers that hold resources.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, []func() error, error) {
	ps := &app.Providers{
		STTName:        cfg.Providers.STT.Name,
		TranslatorName: cfg.Providers.Translate.Name,
	}
	var closers []func() error
	track := func(p any) {
		if c, ok := p.(io.Closer); ok {
			closers = append(closers, c.Close)
		}
	}
	fail := func(err error) (*app.Providers, []func() error, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, nil, err
	}

	sttDefaults := map[string]any{
		"language":    cfg.Languages.Source,
		"sample_rate": cfg.Audio.SampleRate,
	}
	// Glossary terms double as recognition hints for backends that take them.
	if len(cfg.Glossary.Terms) > 0 {
		sttDefaults["keywords"] = cfg.Glossary.Terms
	}
	newSTT := func(entry config.ProviderEntry) (stt.Transcriber, error) {
		p, err := reg.CreateSTT(withDefaults(entry, sttDefaults))
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		track(p)
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
		return p, nil
	}
	newTranslator := func(entry config.ProviderEntry) (translate.Translator, error) {
		p, err := reg.CreateTranslator(entry)
		if err != nil {
			return nil, fmt.Errorf("create translate provider %q: %w", entry.Name, err)
		}
		track(p)
		slog.Info("provider created", "kind", "translate", "name", entry.Name)
		return p, nil
	}

	primarySTT, err := newSTT(cfg.Providers.STT)
	if err != nil {
		return fail(err)
	}
	ps.STT = primarySTT
	if len(cfg.Providers.STTFallbacks) > 0 {
		chain := resilience.NewSTTFallback(primarySTT, cfg.Providers.STT.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.STTFallbacks {
			p, err := newSTT(entry)
			if err != nil {
				return fail(err)
			}
			chain.AddFallback(entry.Name, p)
		}
		ps.STT = chain
		slog.Info("stt fallback chain", "order", chain.Names())
	}

	primaryTr, err := newTranslator(cfg.Providers.Translate)
	if err != nil {
		return fail(err)
	}
	ps.Translator = primaryTr
	if len(cfg.Providers.TranslateFallbacks) > 0 {
		chain := resilience.NewTranslateFallback(primaryTr, cfg.Providers.Translate.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.TranslateFallbacks {
			p, err := newTranslator(entry)
			if err != nil {
				return fail(err)
			}
			chain.AddFallback(entry.Name, p)
		}
		ps.Translator = chain
		slog.Info("translate fallback chain", "order", chain.Names())
	}

	if entry := cfg.Providers.Embeddings; entry.Name != "" {
		if entry.Options["dimensions"] == nil && cfg.Archive.EmbeddingDimensions > 0 {
			entry = withDefaults(entry, map[string]any{"dimensions": cfg.Archive.EmbeddingDimensions})
		}
		p, err := reg.CreateEmbeddings(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("embeddings provider not registered; similarity search disabled", "name", entry.Name)
		} else if err != nil {
			return fail(fmt.Errorf("create embeddings provider %q: %w", entry.Name, err))
		} else {
			track(p)
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", entry.Name, "model", p.ModelID())
		}
	}

	return ps, closers, nil
}

// withDefaults returns entry with defaults merged under its own Options.
// The caller's map is not modified.
func withDefaults(entry config.ProviderEntry, defaults map[string]any) config.ProviderEntry {
	merged := make(map[string]any, len(defaults)+len(entry.Options))
	for k, v := range defaults {
		if v != nil && v != "" && v != 0 {
			merged[k] = v
		}
	}
	maps.Copy(merged, entry.Options)
	entry.Options = merged
	return entry
}

// optString extracts a string value from a provider Options map. Returns ""
// if the key is absent or not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int;
// float64 and int64 appear when options are built in code.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// optStrings extracts a string list. YAML decodes sequences as []any.
func optStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// parseKeywords reads "word" or "word:boost" entries. The boost defaults
// to 1.
func parseKeywords(entries []string) []deepgram.Keyword {
	kws := make([]deepgram.Keyword, 0, len(entries))
	for _, e := range entries {
		kw := deepgram.Keyword{Word: e, Boost: 1}
		if i := strings.LastIndex(e, ":"); i > 0 {
			if b, err := strconv.ParseFloat(e[i+1:], 64); err == nil {
				kw = deepgram.Keyword{Word: e[:i], Boost: b}
			}
		}
		kws = append(kws, kw)
	}
	return kws
}

func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
