package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mbd888/risklens/internal/logging"
	"github.com/mbd888/risklens/internal/replay"
)

// MaxReplaySessions bounds concurrent replay connections.
const MaxReplaySessions = 1000

// ReplayHandler serves one replay session per websocket connection.
type ReplayHandler struct {
	streamer    *replay.Streamer
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	maxSessions int64
	active      atomic.Int64

	root context.Context
	stop context.CancelFunc
}

// NewReplayHandler creates a handler running sessions on streamer.
// checkOrigin may be nil to accept any origin.
func NewReplayHandler(streamer *replay.Streamer, logger *slog.Logger, checkOrigin func(*http.Request) bool) *ReplayHandler {
	root, stop := context.WithCancel(context.Background())
	return &ReplayHandler{
		streamer: streamer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		maxSessions: MaxReplaySessions,
		root:        root,
		stop:        stop,
	}
}

// ActiveSessions returns the number of open sessions.
func (h *ReplayHandler) ActiveSessions() int64 {
	return h.active.Load()
}

// Shutdown cancels every open session. Sessions close with going-away.
func (h *ReplayHandler) Shutdown() {
	h.stop()
}

// ServeHTTP upgrades the request and runs a session until the dataset is
// exhausted, the client disconnects, or the handler shuts down.
func (h *ReplayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.root.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if h.active.Add(1) > h.maxSessions {
		h.active.Add(-1)
		http.Error(w, "too many replay sessions", http.StatusServiceUnavailable)
		return
	}
	defer h.active.Add(-1)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("replay upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Sessions end with the connection or at handler shutdown.
	ctx, cancel := context.WithCancel(h.root)
	defer cancel()
	ctx = logging.WithLogger(ctx, h.logger)
	ctx = logging.WithRequestID(ctx, logging.RequestID(r.Context()))
	ctx = logging.WithSessionID(ctx, "rpl_"+uuid.NewString())
	log := logging.L(ctx)
	log.Info("replay connected", "remote", r.RemoteAddr)

	go readUntilClosed(conn, cancel)
	go keepAlive(ctx, conn, cancel)

	sum, err := h.streamer.Run(ctx, replay.EmitterFunc(func(_ context.Context, v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}))

	code, reason := websocket.CloseNormalClosure, "replay complete"
	switch sum.Outcome {
	case replay.OutcomeDatasetMissing:
		reason = "dataset missing"
	case replay.OutcomeFailed:
		code, reason = websocket.CloseInternalServerErr, "replay failed"
		log.Error("replay failed", "error", err)
	case replay.OutcomeDisconnected:
		if h.root.Err() != nil {
			code, reason = websocket.CloseGoingAway, "server shutting down"
		} else {
			code = 0
		}
	}
	if code != 0 {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	}

	log.Info("replay disconnected",
		"outcome", string(sum.Outcome),
		"emitted", sum.Emitted,
		"sample_size", sum.SampleSize,
	)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, replay.ErrDatasetMissing) {
		log.Debug("replay session ended with error", "error", err)
	}
}

// readUntilClosed drains inbound frames so control frames are processed,
// and cancels the session when the peer goes away.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// keepAlive pings the peer between paced payloads. WriteControl may run
// concurrently with the session's data writes.
func keepAlive(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				cancel()
				return
			}
		}
	}
}
