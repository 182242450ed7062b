// Package mic captures mono float32 audio from a local input device using
// PortAudio. It requires cgo and the PortAudio shared library at runtime.
package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	// DefaultSampleRate is the device rate requested when none is configured.
	DefaultSampleRate = 48000

	// DefaultFramesPerBuffer is the number of frames read per callback.
	DefaultFramesPerBuffer = 1024
)

// ErrDeviceNotFound is returned when a named input device does not exist.
var ErrDeviceNotFound = errors.New("mic: input device not found")

// Config holds capture parameters.
type Config struct {
	// SampleRate is the rate requested from the device in Hz.
	SampleRate int

	// FramesPerBuffer is the chunk size handed to the callback.
	FramesPerBuffer int

	// Device selects an input device by name. Empty selects the system
	// default.
	Device string
}

// Capture reads mono audio from one input stream. Create one with [Open]
// and release it with [Capture.Close].
type Capture struct {
	cfg    Config
	stream *portaudio.Stream
	buf    []float32

	closeOnce sync.Once
	closeErr  error
}

// Open initialises PortAudio and opens a mono input stream. The stream is
// not started until [Capture.Run].
func Open(cfg Config) (*Capture, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("mic: initialise portaudio: %w", err)
	}

	c := &Capture{cfg: cfg, buf: make([]float32, cfg.FramesPerBuffer)}

	var err error
	if cfg.Device == "" || cfg.Device == "default" {
		c.stream, err = portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, c.buf)
	} else {
		var dev *portaudio.DeviceInfo
		dev, err = findInputDevice(cfg.Device)
		if err == nil {
			c.stream, err = portaudio.OpenStream(portaudio.StreamParameters{
				Input: portaudio.StreamDeviceParameters{
					Device:   dev,
					Channels: 1,
					Latency:  dev.DefaultLowInputLatency,
				},
				SampleRate:      float64(cfg.SampleRate),
				FramesPerBuffer: cfg.FramesPerBuffer,
			}, c.buf)
		}
	}
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("mic: open stream: %w", err)
	}
	return c, nil
}

// SampleRate returns the device rate of the captured samples.
func (c *Capture) SampleRate() int { return c.cfg.SampleRate }

// Run starts the stream and calls fn with a fresh copy of every buffer until
// ctx is cancelled or fn returns an error. Input overflows are logged and
// skipped.
func (c *Capture) Run(ctx context.Context, fn func([]float32) error) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("mic: start stream: %w", err)
	}
	defer func() {
		if err := c.stream.Stop(); err != nil {
			slog.Warn("mic: stop stream", "err", err)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				slog.Debug("mic: input overflowed")
				continue
			}
			return fmt.Errorf("mic: read: %w", err)
		}
		samples := make([]float32, len(c.buf))
		copy(samples, c.buf)
		if err := fn(samples); err != nil {
			return err
		}
	}
}

// Close releases the stream and terminates PortAudio. It is safe to call
// more than once.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(c.stream.Close(), portaudio.Terminate())
	})
	return c.closeErr
}

// InputDevices lists the names of devices with at least one input channel.
func InputDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("mic: initialise portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("mic: list devices: %w", err)
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}
