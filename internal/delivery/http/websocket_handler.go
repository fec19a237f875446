package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
)

const (
	defaultStreamPollInterval = time.Second
	defaultStreamMaxDuration  = 5 * time.Minute

	streamKeepaliveEvery = 30 * time.Second
	streamWriteTimeout   = 10 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamEvent is one frame on the status stream. Result carries the terminal
// lookup payload once the record finishes; intermediate frames are
// status-only.
type streamEvent struct {
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Terminal  bool      `json:"terminal"`
	UpdatedAt time.Time `json:"updated_at"`
	Result    any       `json:"result,omitempty"`
}

// WebSocketHandler streams record status transitions to clients until the
// record reaches a terminal state. Only status changes cross the wire; fetch
// bodies appear solely in the terminal frame, the same payload the lookup
// endpoint serves.
type WebSocketHandler struct {
	repo         repository.MetadataRepository
	pollInterval time.Duration
	maxDuration  time.Duration
	logger       *zap.Logger
}

// NewWebSocketHandler creates a stream handler polling the store at the
// configured cadence.
func NewWebSocketHandler(repo repository.MetadataRepository, pollInterval, maxDuration time.Duration, logger *zap.Logger) *WebSocketHandler {
	if pollInterval <= 0 {
		pollInterval = defaultStreamPollInterval
	}
	if maxDuration <= 0 {
		maxDuration = defaultStreamMaxDuration
	}
	return &WebSocketHandler{
		repo:         repo,
		pollInterval: pollInterval,
		maxDuration:  maxDuration,
		logger:       logger,
	}
}

// Stream handles GET /metadata/stream?url=U (WebSocket upgrade)
func (h *WebSocketHandler) Stream(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url query parameter"})
		return
	}
	if err := domain.ValidateURL(url); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an absolute http(s) URL"})
		return
	}
	if h.repo == nil {
		c.String(http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	rec, err := h.repo.GetByURL(c.Request.Context(), url)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No record for url"})
			return
		}
		c.String(http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.String("url", url), zap.Error(err))
		return
	}
	defer conn.Close()

	// The stream lives until the record turns terminal, the client goes
	// away, or maxDuration elapses.
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.maxDuration)
	defer cancel()

	// Clients never send application data; the read loop exists to notice
	// disconnects and cancel the stream.
	conn.SetReadLimit(256)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// First frame goes out immediately; polling only covers what changes
	// afterwards.
	if err := h.writeEvent(conn, rec); err != nil {
		return
	}
	if rec.Status.IsTerminal() {
		h.closeStream(conn, "record already terminal")
		return
	}
	lastStatus := rec.Status

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	// Keepalive pings ride the same ticker instead of a second timer.
	ticksPerPing := int(streamKeepaliveEvery / h.pollInterval)
	ticks := 0

	for {
		select {
		case <-ctx.Done():
			h.closeStream(conn, "stream expired")
			return
		case <-ticker.C:
		}

		ticks++
		if ticksPerPing > 0 && ticks%ticksPerPing == 0 {
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}

		rec, err := h.repo.GetByURL(ctx, url)
		if err != nil {
			h.closeStream(conn, "record unavailable")
			return
		}
		if rec.Status == lastStatus {
			continue
		}
		lastStatus = rec.Status

		if err := h.writeEvent(conn, rec); err != nil {
			return
		}
		if rec.Status.IsTerminal() {
			h.logger.Debug("stream finished",
				zap.String("url", url),
				zap.String("status", string(rec.Status)),
			)
			h.closeStream(conn, "record reached terminal state")
			return
		}
	}
}

func (h *WebSocketHandler) writeEvent(conn *websocket.Conn, rec *domain.Record) error {
	ev := streamEvent{
		URL:       rec.URL,
		Status:    string(rec.Status),
		Terminal:  rec.Status.IsTerminal(),
		UpdatedAt: rec.UpdatedAt,
	}
	switch rec.Status {
	case domain.StatusCompleted:
		ev.Result = completedResponse(rec)
	case domain.StatusFailedPermanent:
		ev.Result = failedResponse(rec)
	}

	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("websocket write failed", zap.String("url", rec.URL), zap.Error(err))
		return err
	}
	return nil
}

func (h *WebSocketHandler) closeStream(conn *websocket.Conn, reason string) {
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}
