package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/MrWong99/livescribe/internal/stream"
	"github.com/MrWong99/livescribe/pkg/audio"
	"github.com/MrWong99/livescribe/pkg/segment"
	"github.com/MrWong99/livescribe/pkg/vad"
)

// maxChunkBytes bounds one POST /v1/audio body.
const maxChunkBytes = 8 << 20

// vadOptions is the JSON form of the segmenter options. Durations use Go
// syntax ("30ms", "1.5s"). Omitted fields keep their current value.
type vadOptions struct {
	SampleRate         int      `json:"sample_rate,omitempty"`
	FrameDuration      string   `json:"frame_duration,omitempty"`
	EnergyThreshold    *float64 `json:"energy_threshold,omitempty"`
	MinSilenceDuration string   `json:"min_silence_duration,omitempty"`
}

func toVADOptions(c vad.Config) vadOptions {
	th := c.EnergyThreshold
	return vadOptions{
		SampleRate:         c.SampleRate,
		FrameDuration:      c.FrameDuration.String(),
		EnergyThreshold:    &th,
		MinSilenceDuration: c.MinSilenceDuration.String(),
	}
}

// merge applies o onto c. The sample rate is fixed for the process.
func (o vadOptions) merge(c vad.Config) (vad.Config, error) {
	if o.SampleRate != 0 && o.SampleRate != c.SampleRate {
		return c, fmt.Errorf("sample_rate is fixed at %d", c.SampleRate)
	}
	var err error
	if o.FrameDuration != "" {
		if c.FrameDuration, err = time.ParseDuration(o.FrameDuration); err != nil {
			return c, fmt.Errorf("frame_duration: %w", err)
		}
	}
	if o.MinSilenceDuration != "" {
		if c.MinSilenceDuration, err = time.ParseDuration(o.MinSilenceDuration); err != nil {
			return c, fmt.Errorf("min_silence_duration: %w", err)
		}
	}
	if o.EnergyThreshold != nil {
		c.EnergyThreshold = *o.EnergyThreshold
	}
	return c, nil
}

type statusResponse struct {
	SessionID        string     `json:"session_id,omitempty"`
	Started          bool       `json:"started"`
	State            string     `json:"state"`
	PendingSamples   int        `json:"pending_samples"`
	SilenceSamples   int        `json:"silence_samples"`
	UtteranceSamples int        `json:"utterance_samples"`
	Backlog          int        `json:"backlog"`
	Transcripts      int        `json:"transcripts"`
	SegmentsWritten  int        `json:"segments_written"`
	VAD              vadOptions `json:"vad"`
}

func (a *App) registerSessionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/session/start", a.handleStart)
	mux.HandleFunc("POST /v1/session/stop", a.handleStop)
	mux.HandleFunc("POST /v1/session/flush", a.handleFlush)
	mux.HandleFunc("GET /v1/session", a.handleStatus)
	mux.HandleFunc("PUT /v1/session/options", a.handleOptions)
	mux.HandleFunc("POST /v1/audio", a.handleAudio)
	mux.HandleFunc("GET /v1/transcripts/next", a.handleNextTranscript)
	mux.HandleFunc("POST /v1/segments/{name}/transcribe", a.handleTranscribeSegment)
}

func (a *App) handleStart(w http.ResponseWriter, _ *http.Request) {
	id, err := a.processor.Start()
	if err != nil {
		writeStreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (a *App) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := a.processor.Stop(); err != nil {
		writeStreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleFlush(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"flushed": a.processor.Flush()})
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := a.processor.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		SessionID:        st.SessionID,
		Started:          st.Started,
		State:            st.State,
		PendingSamples:   st.PendingSamples,
		SilenceSamples:   st.SilenceSamples,
		UtteranceSamples: st.UtteranceSamples,
		Backlog:          st.Backlog,
		Transcripts:      st.Transcripts,
		SegmentsWritten:  st.SegmentsWritten,
		VAD:              toVADOptions(st.VAD),
	})
}

func (a *App) handleOptions(w http.ResponseWriter, r *http.Request) {
	var opts vadOptions
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid options: "+err.Error())
		return
	}
	cfg, err := opts.merge(a.processor.Options())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.processor.SetOptions(cfg); err != nil {
		writeStreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVADOptions(a.processor.Options()))
}

// handleAudio ingests one raw chunk described by the rate, channels and
// encoding query parameters.
func (a *App) handleAudio(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r.URL.Query(), a.cfg.Audio.SampleRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case a.producer <- struct{}{}:
		defer func() { <-a.producer }()
	default:
		writeError(w, http.StatusConflict, "another audio stream is active")
		return
	}

	samples, err := a.normalize(a.normalizer, audio.Chunk{Data: data, Format: format})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.processor.ProcessChunk(samples); err != nil {
		writeStreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"samples": len(samples)})
}

// normalize converts c to canonical samples. A client that switches rates
// between chunks starts a fresh resampler.
func (a *App) normalize(n *audio.Normalizer, c audio.Chunk) ([]float32, error) {
	samples, err := n.Normalize(c, false)
	if errors.Is(err, audio.ErrConfigurationMismatch) {
		slog.Warn("audio rate changed mid-session, resetting resampler", "format", c.Format.String())
		n.Reset()
		samples, err = n.Normalize(c, false)
	}
	return samples, err
}

func (a *App) handleNextTranscript(w http.ResponseWriter, _ *http.Request) {
	rec, ok := a.processor.PollTranscript()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *App) handleTranscribeSegment(w http.ResponseWriter, r *http.Request) {
	src, tgt, err := a.processor.TranscribeRef(r.Context(), r.PathValue("name"))
	switch {
	case errors.Is(err, segment.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, "segment not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"source_text": src, "target_text": tgt})
}

// parseFormat reads rate, channels and encoding from q. Missing values
// default to mono s16le at defaultRate.
func parseFormat(q url.Values, defaultRate int) (audio.Format, error) {
	f := audio.Format{SampleRate: defaultRate, Channels: 1}
	var err error
	if v := q.Get("rate"); v != "" {
		if f.SampleRate, err = strconv.Atoi(v); err != nil {
			return f, fmt.Errorf("rate: %w", err)
		}
	}
	if v := q.Get("channels"); v != "" {
		if f.Channels, err = strconv.Atoi(v); err != nil {
			return f, fmt.Errorf("channels: %w", err)
		}
	}
	if f.Encoding, err = audio.ParseEncoding(q.Get("encoding")); err != nil {
		return f, err
	}
	return f, f.Validate()
}

// writeStreamError maps processor errors to HTTP statuses.
func writeStreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stream.ErrNotStarted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, stream.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, vad.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "err", err)
	}
}
