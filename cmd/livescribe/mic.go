package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/livescribe/internal/app"
	"github.com/MrWong99/livescribe/pkg/audio"
	"github.com/MrWong99/livescribe/pkg/audio/mic"
)

type micFlags struct {
	deviceRate int
	device     string
}

func newMicCmd(global *globalFlags) *cobra.Command {
	flags := &micFlags{}
	cmd := &cobra.Command{
		Use:   "mic",
		Short: "Transcribe the microphone live",
		Long: `mic captures an input device with PortAudio at --device-rate, resamples
to the configured pipeline rate and prints each record as a JSON line as
soon as it is released. Press Ctrl+C to stop; the utterance in progress is
flushed first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMic(cmd.Context(), cmd.OutOrStdout(), global.configPath, flags)
		},
	}
	cmd.Flags().IntVar(&flags.deviceRate, "device-rate", mic.DefaultSampleRate, "capture sample rate in Hz")
	cmd.Flags().StringVar(&flags.device, "device", "", "input device name (default: system default)")
	return cmd
}

func runMic(parent context.Context, out io.Writer, configPath string, flags *micFlags) error {
	e, err := setup(configPath)
	if err != nil {
		return err
	}
	defer e.close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	capture, err := mic.Open(mic.Config{SampleRate: flags.deviceRate, Device: flags.device})
	if err != nil {
		return err
	}
	defer capture.Close()

	application, err := app.New(ctx, e.cfg, e.providers)
	if err != nil {
		return err
	}
	p := application.Processor()
	id, err := p.Start()
	if err != nil {
		return err
	}

	pr := newRecordPrinter(out, p)
	pr.label(id, "mic")
	pr.start()
	slog.Info("listening", "session_id", id, "device_rate", capture.SampleRate(), "pipeline_rate", p.SampleRate())

	resampler := audio.NewResampler(audio.WithIdleReset(e.cfg.Audio.ResampleIdleReset))
	runErr := capture.Run(ctx, func(samples []float32) error {
		resampled, err := resampler.Resample(samples, capture.SampleRate(), p.SampleRate(), false)
		if err != nil {
			return fmt.Errorf("resample: %w", err)
		}
		return p.ProcessChunk(resampled)
	})

	p.Flush()
	if err := p.Stop(); err != nil {
		slog.Warn("stop session", "err", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := application.Shutdown(shutdownCtx)
	pr.stop()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return shutdownErr
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := mic.InputDevices()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
