// Command livescribe cuts live speech into utterances, transcribes each one
// and translates the text.
//
// Subcommands:
//
//	livescribe serve --config config.yaml
//	livescribe transcribe --config config.yaml talk.wav [more.wav...]
//	livescribe mic --config config.yaml --device-rate 48000
//	livescribe devices
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/livescribe/internal/app"
	"github.com/MrWong99/livescribe/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "livescribe: %v\n", err)
		return 1
	}
	return 0
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "livescribe",
		Short: "Real-time speech segmentation, transcription and translation",
		Long: `livescribe splits an audio stream into utterances with an energy-based
voice activity detector, writes each utterance as a WAV segment and runs it
through speech-to-text and translation. Results are released strictly in
utterance order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(flags),
		newTranscribeCmd(flags),
		newMicCmd(flags),
		newDevicesCmd(),
	)
	return root
}

// env is what every pipeline subcommand needs: the loaded config, the
// process logger level and the constructed model backends.
type env struct {
	cfg       *config.Config
	level     *slog.LevelVar
	providers *app.Providers
	closers   []func() error
}

// setup loads the config, installs the default logger and builds the
// providers named in the config.
func setup(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", configPath)
		}
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(os.Stderr, level))

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, closers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, level: level, providers: providers, closers: closers}, nil
}

// close releases provider resources such as loaded whisper models.
func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
	e.closers = nil
}

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
