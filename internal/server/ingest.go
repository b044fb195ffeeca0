package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ayusman/facecue/internal/landmark"
	"github.com/ayusman/facecue/internal/metrics"
	"github.com/ayusman/facecue/internal/session"
)

// frameError is sent back to a landmark producer when a frame was rejected.
type frameError struct {
	Error string `json:"error"`
}

// LandmarksHandler accepts landmark frames over a websocket. Every connection
// gets its own session, and each processed frame is answered with a Result.
type LandmarksHandler struct {
	manager *session.Manager
	maxFPS  float64
	enabled func() bool
	log     zerolog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewLandmarksHandler creates a LandmarksHandler. maxFPS <= 0 disables
// throttling and a nil enabled func means always enabled.
func NewLandmarksHandler(m *session.Manager, maxFPS float64, enabled func() bool, log zerolog.Logger) *LandmarksHandler {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &LandmarksHandler{
		manager: m,
		maxFPS:  maxFPS,
		enabled: enabled,
		log:     log.With().Str("component", "ingest").Logger(),
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// Close disconnects every producer and waits until their sessions have ended.
func (h *LandmarksHandler) Close() error {
	h.mu.Lock()
	h.closed = true
	for c := range h.conns {
		c.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

func (h *LandmarksHandler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *LandmarksHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.wg.Done()
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *LandmarksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if !h.track(conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		return
	}
	defer h.untrack(conn)

	s, err := h.manager.Start(r.Context(), "ws")
	if err != nil {
		h.log.Error().Err(err).Msg("failed to start session")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"))
		return
	}

	var writeMu sync.Mutex
	write := func(v any) {
		msg, err := json.Marshal(v)
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.TextMessage, msg)
	}

	runner := session.NewRunner(s, h.manager.Runtime(), func(res session.Result, err error) {
		if err != nil {
			if session.IsFrameError(err) {
				write(frameError{Error: err.Error()})
			} else if !errors.Is(err, session.ErrClosed) {
				h.log.Warn().Err(err).Str("session", s.ID()).Msg("frame failed")
			}
			return
		}
		write(res)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(ctx)
	}()

	h.readLoop(conn, runner, write)

	cancel()
	<-done
	if _, err := h.manager.End(context.Background(), s.ID()); err != nil {
		h.log.Warn().Err(err).Str("session", s.ID()).Msg("failed to end session")
	}
}

func (h *LandmarksHandler) readLoop(conn *websocket.Conn, runner *session.Runner, write func(any)) {
	limit := rate.Inf
	if h.maxFPS > 0 {
		limit = rate.Limit(h.maxFPS)
	}
	limiter := rate.NewLimiter(limit, 1)

	conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("landmark stream closed")
			}
			return
		}

		if !h.enabled() {
			metrics.FramesSkipped.WithLabelValues(metrics.ReasonDisabled).Inc()
			continue
		}
		if !limiter.Allow() {
			metrics.FramesSkipped.WithLabelValues(metrics.ReasonThrottled).Inc()
			continue
		}

		frame, err := landmark.DecodeFrame(data)
		if err != nil {
			metrics.FramesSkipped.WithLabelValues(metrics.ReasonDecode).Inc()
			write(frameError{Error: err.Error()})
			continue
		}
		runner.Offer(frame)
	}
}
