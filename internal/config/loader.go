package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// only warns about other names so third-party factories can be registered.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native", "deepgram", "openai"},
	"translate":  {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates it. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and returns a
// joined error listing every failure. Call [Config.ApplyDefaults] first.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	if err := cfg.Stream().Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Audio.ResampleIdleReset < 0 {
		errs = append(errs, fmt.Errorf("audio.resample_idle_reset %v must not be negative", cfg.Audio.ResampleIdleReset))
	}
	if cfg.Writer.Dir == "" {
		errs = append(errs, errors.New("writer.dir is required"))
	}

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.Translate.Name == "" {
		errs = append(errs, errors.New("providers.translate.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for i, e := range cfg.Providers.STTFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", e.Name)
	}
	for i, e := range cfg.Providers.TranslateFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.translate_fallbacks[%d].name is required", i))
		}
		validateProviderName("translate", e.Name)
	}

	if cfg.Archive.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("archive.embedding_dimensions %d must not be negative", cfg.Archive.EmbeddingDimensions))
	}
	if t := cfg.Glossary.PhoneticThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("glossary.phonetic_threshold %v must be within [0, 1]", t))
	}
	if t := cfg.Glossary.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("glossary.fuzzy_threshold %v must be within [0, 1]", t))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Archive.PostgresDSN == "" {
		slog.Warn("providers.embeddings is configured but archive.postgres_dsn is empty; embeddings will not be used")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not a
// built-in provider of kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
