package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
	"github.com/Pragya1904/HTTP-Inventory/internal/metrics"
	"github.com/Pragya1904/HTTP-Inventory/internal/publisher"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
)

// MetadataHandler serves the accept and lookup endpoints. It never mutates
// the store; its only write path is publishing to the queue.
type MetadataHandler struct {
	publisher publisher.Publisher
	repo      repository.MetadataRepository
	logger    *zap.Logger
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler(pub publisher.Publisher, repo repository.MetadataRepository, logger *zap.Logger) *MetadataHandler {
	return &MetadataHandler{
		publisher: pub,
		repo:      repo,
		logger:    logger,
	}
}

type postMetadataRequest struct {
	URL string `json:"url" binding:"required"`
}

// Post handles POST /metadata
func (h *MetadataHandler) Post(c *gin.Context) {
	var req postMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := domain.ValidateURL(req.URL); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "url must be an absolute http(s) URL"})
		return
	}

	h.enqueue(c, req.URL)
}

// Get handles GET /metadata?url=U
func (h *MetadataHandler) Get(c *gin.Context) {
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
			// Never seen: behave as the accept endpoint.
			h.enqueue(c, url)
			return
		}
		h.logger.Error("store read failed", zap.String("url", url), zap.Error(err))
		c.String(http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	switch {
	case rec.Status == domain.StatusCompleted:
		c.JSON(http.StatusOK, completedResponse(rec))
	case rec.Status == domain.StatusFailedPermanent:
		c.JSON(http.StatusOK, failedResponse(rec))
	case rec.Status.IsInProgress():
		// Already queued or being worked: report progress, do not re-enqueue.
		c.JSON(http.StatusAccepted, inProgressResponse(rec))
	default:
		// Unknown or unrecognized status: re-enqueue once.
		h.enqueue(c, url)
	}
}

// enqueue publishes one queue message for url and writes the 202/503
// response.
func (h *MetadataHandler) enqueue(c *gin.Context, url string) {
	if h.publisher == nil {
		h.logger.Warn("publish rejected", zap.String("reason", "publisher_not_ready"))
		c.String(http.StatusServiceUnavailable, "Publisher not available")
		return
	}
	if !h.publisher.Ready() {
		h.logger.Warn("publish rejected",
			zap.String("reason", "publisher_not_ready"),
			zap.String("url", url),
		)
		metrics.PublishesTotal.WithLabelValues("not_ready").Inc()
		c.String(http.StatusServiceUnavailable, "Publisher not ready")
		return
	}

	msg := domain.QueueMessage{
		URL:         url,
		RequestID:   uuid.NewString(),
		RequestedAt: time.Now().UTC(),
	}

	if err := h.publisher.Publish(c.Request.Context(), msg); err != nil {
		h.logger.Warn("publish failed",
			zap.String("url", url),
			zap.String("request_id", msg.RequestID),
			zap.Error(err),
		)
		if domain.IsQueueRejected(err) {
			metrics.PublishesTotal.WithLabelValues("rejected").Inc()
			c.String(http.StatusServiceUnavailable, "Queue rejected")
			return
		}
		metrics.PublishesTotal.WithLabelValues("failed").Inc()
		c.String(http.StatusServiceUnavailable, "Publish failed")
		return
	}

	metrics.PublishesTotal.WithLabelValues("success").Inc()
	h.logger.Info("url queued",
		zap.String("url", url),
		zap.String("request_id", msg.RequestID),
	)
	c.JSON(http.StatusAccepted, PostResponse{
		Status:    string(domain.StatusQueued),
		URL:       url,
		RequestID: msg.RequestID,
	})
}
