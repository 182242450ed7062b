// Package segment persists finalised utterances as numbered WAV files and
// reads them back for replay.
//
// A [Writer] owns one output directory. The directory is purged when the
// Writer is created, so each process run starts from an empty set of
// segments. Files are named "{prefix}-{n}.wav" with n counting successful
// writes from zero.
package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/livescribe/pkg/audio"
)

const (
	DefaultPrefix     = "chunk"
	DefaultSampleRate = 16000
	DefaultBitDepth   = 16

	wavFormatPCM = 1
)

var (
	// ErrInvalidName is returned by [Writer.Resolve] for names that are not
	// of the form "{prefix}-{n}".
	ErrInvalidName = errors.New("segment: invalid segment name")

	// ErrEmpty is returned by [Writer.Write] for an empty sample slice.
	ErrEmpty = errors.New("segment: no samples")
)

// Option configures a [Writer].
type Option func(*Writer)

// WithPrefix sets the file name prefix. Defaults to "chunk".
func WithPrefix(p string) Option { return func(w *Writer) { w.prefix = p } }

// WithSampleRate sets the rate written into the WAV header.
func WithSampleRate(sr int) Option { return func(w *Writer) { w.sampleRate = sr } }

// WithBitDepth sets the PCM sample width. Only 16 and 24 are accepted.
func WithBitDepth(bits int) Option { return func(w *Writer) { w.bitDepth = bits } }

// Writer writes mono float32 utterances to disk. Write is meant to be called
// from one goroutine; Count, Read and Resolve are safe for concurrent use.
type Writer struct {
	dir        string
	prefix     string
	sampleRate int
	bitDepth   int
	namePat    *regexp.Regexp

	mu    sync.Mutex
	count int
}

// New removes dir and everything in it, recreates it, and returns a Writer
// whose counter starts at zero.
func New(dir string, opts ...Option) (*Writer, error) {
	w := &Writer{
		dir:        dir,
		prefix:     DefaultPrefix,
		sampleRate: DefaultSampleRate,
		bitDepth:   DefaultBitDepth,
	}
	for _, o := range opts {
		o(w)
	}

	var errs []error
	if strings.TrimSpace(dir) == "" {
		errs = append(errs, errors.New("dir must not be empty"))
	}
	if w.prefix == "" || strings.ContainsAny(w.prefix, `/\`) {
		errs = append(errs, fmt.Errorf("prefix %q must be a non-empty file name", w.prefix))
	}
	if w.sampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", w.sampleRate))
	}
	if w.bitDepth != 16 && w.bitDepth != 24 {
		errs = append(errs, fmt.Errorf("bit depth %d not supported", w.bitDepth))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("segment: purge %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("segment: create %s: %w", dir, err)
	}

	w.namePat = regexp.MustCompile(`^` + regexp.QuoteMeta(w.prefix) + `-(0|[1-9][0-9]*)$`)
	return w, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write encodes samples as a mono PCM WAV file named after the current
// counter and returns its path. The counter only advances when the file was
// written completely; a partial file is removed on failure.
func (w *Writer) Write(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", ErrEmpty
	}

	w.mu.Lock()
	n := w.count
	w.mu.Unlock()

	path := w.pathFor(n)
	if err := w.encode(path, samples); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("segment: write %s: %w", path, err)
	}

	w.mu.Lock()
	w.count = n + 1
	w.mu.Unlock()
	return path, nil
}

func (w *Writer) encode(path string, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, w.sampleRate, w.bitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Data:           audio.Float32ToInt(samples, w.bitDepth),
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.sampleRate},
		SourceBitDepth: w.bitDepth,
	}
	werr := enc.Write(buf)
	cerr := enc.Close()
	ferr := f.Close()
	return errors.Join(werr, cerr, ferr)
}

// Count returns the number of successful writes since construction or the
// last [Writer.ResetCounter].
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// ResetCounter rewinds the counter to zero. Existing files are left in
// place and will be overwritten by subsequent writes.
func (w *Writer) ResetCounter() {
	w.mu.Lock()
	w.count = 0
	w.mu.Unlock()
}

// Resolve maps a bare segment name such as "chunk-3" to its path inside the
// output directory. It does not check that the file exists.
func (w *Writer) Resolve(name string) (string, error) {
	name = strings.TrimSuffix(name, ".wav")
	if !w.namePat.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(w.dir, name+".wav"), nil
}

// Index returns n for a path or name of the form "{prefix}-{n}[.wav]".
func (w *Writer) Index(ref string) (int, error) {
	name := strings.TrimSuffix(filepath.Base(ref), ".wav")
	m := w.namePat.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, ref)
	}
	return strconv.Atoi(m[1])
}

// Read decodes the WAV file at ref into mono float32 samples in [-1, 1] and
// returns them with the file's sample rate.
func (w *Writer) Read(ref string) ([]float32, int, error) {
	return ReadFile(ref)
}

func (w *Writer) pathFor(n int) string {
	return filepath.Join(w.dir, w.prefix+"-"+strconv.Itoa(n)+".wav")
}

// ReadFile decodes any PCM WAV file into mono float32 samples, averaging
// channels, and returns the samples with the file's sample rate.
func ReadFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("segment: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("segment: %s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("segment: decode %s: %w", path, err)
	}

	bits := int(dec.BitDepth)
	if bits <= 0 {
		bits = DefaultBitDepth
	}
	scale := float32(int64(1) << (bits - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	mono := audio.Downmix(samples, channels)
	audio.Clip(mono)
	return mono, int(dec.SampleRate), nil
}
