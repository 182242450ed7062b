package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/livescribe/internal/stream"
	"github.com/MrWong99/livescribe/pkg/audio"
)

// streamPollInterval backs up the processor's Ready signal, which can
// coalesce wake-ups.
const streamPollInterval = 250 * time.Millisecond

// streamMessage is a server-to-client message on /v1/stream.
type streamMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Record    *stream.Record `json:"record,omitempty"`
	Flushed   *bool          `json:"flushed,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// controlMessage is a client-to-server text message on /v1/stream.
type controlMessage struct {
	Type string `json:"type"`
}

func (a *App) registerStreamRoute(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/stream", a.handleStream)
}

// handleStream accepts a WebSocket carrying binary audio chunks in the
// format given by the query parameters. Released records are pushed back as
// they become available. The connection owns the audio input until it
// closes; a session is started for it if none is active and stopped again
// when it ends.
func (a *App) handleStream(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r.URL.Query(), a.cfg.Audio.SampleRate)
	if err != nil {
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

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("stream: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxChunkBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ownSession := false
	id := a.processor.SessionID()
	if id == "" {
		if id, err = a.processor.Start(); err != nil {
			_ = conn.Close(websocket.StatusTryAgainLater, err.Error())
			return
		}
		ownSession = true
	}
	log := slog.With("session_id", id, "remote", r.RemoteAddr, "format", format.String())
	log.Info("stream: client connected")
	if err := wsjson.Write(ctx, conn, streamMessage{Type: "session", SessionID: id}); err != nil {
		return
	}

	pushDone := make(chan struct{})
	go func() {
		defer close(pushDone)
		a.pushRecords(ctx, conn)
	}()

	err = a.readStream(ctx, conn, format)
	switch st := websocket.CloseStatus(err); {
	case st == websocket.StatusNormalClosure || st == websocket.StatusGoingAway:
		log.Info("stream: client disconnected")
	case errors.Is(err, context.Canceled):
		log.Info("stream: connection cancelled")
	default:
		log.Warn("stream: connection ended", "err", err)
	}

	a.processor.Flush()
	if ownSession {
		if err := a.processor.Stop(); err != nil && !errors.Is(err, stream.ErrNotStarted) {
			log.Warn("stream: stop session", "err", err)
		}
	}
	cancel()
	<-pushDone
}

// readStream feeds binary messages to the processor and handles text
// control messages until the connection fails.
func (a *App) readStream(ctx context.Context, conn *websocket.Conn, format audio.Format) error {
	normalizer := a.newNormalizer()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageText {
			a.handleControl(ctx, conn, data)
			continue
		}
		samples, err := a.normalize(normalizer, audio.Chunk{Data: data, Format: format})
		if err != nil {
			_ = wsjson.Write(ctx, conn, streamMessage{Type: "error", Error: err.Error()})
			continue
		}
		if err := a.processor.ProcessChunk(samples); err != nil {
			_ = wsjson.Write(ctx, conn, streamMessage{Type: "error", Error: err.Error()})
			if errors.Is(err, stream.ErrClosed) {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return err
			}
		}
	}
}

func (a *App) handleControl(ctx context.Context, conn *websocket.Conn, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = wsjson.Write(ctx, conn, streamMessage{Type: "error", Error: "invalid control message"})
		return
	}
	switch msg.Type {
	case "flush":
		flushed := a.processor.Flush()
		_ = wsjson.Write(ctx, conn, streamMessage{Type: "flushed", Flushed: &flushed})
	default:
		_ = wsjson.Write(ctx, conn, streamMessage{Type: "error", Error: "unknown control message " + msg.Type})
	}
}

// pushRecords sends released records to the client until ctx ends.
func (a *App) pushRecords(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()
	for {
		for {
			rec, ok := a.processor.PollTranscript()
			if !ok {
				break
			}
			if err := wsjson.Write(ctx, conn, streamMessage{Type: "transcript", Record: &rec}); err != nil {
				slog.Debug("stream: push record failed", "seq", rec.Seq, "err", err)
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-a.processor.Ready():
		case <-ticker.C:
		}
	}
}
