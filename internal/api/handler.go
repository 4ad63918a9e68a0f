package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gsarma/mailqueue/internal/address"
	"github.com/gsarma/mailqueue/internal/mailer"
	"github.com/gsarma/mailqueue/internal/queue"
	"github.com/gsarma/mailqueue/internal/store"
)

// Mailer is the service surface the HTTP handlers depend on.
type Mailer interface {
	Enqueue(ctx context.Context, req mailer.Request) (mailer.Receipt, error)
	SendDirect(ctx context.Context, req mailer.Request) (address.Address, error)
	History(ctx context.Context, limit int) ([]queue.LogEntry, error)
	Pending(ctx context.Context, f store.Filter) ([]store.Task, error)
}

type Handler struct {
	svc Mailer
}

type sendRequest struct {
	To      string `json:"to" binding:"required"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (r sendRequest) toMailer() mailer.Request {
	return mailer.Request{To: r.To, Subject: r.Subject, Text: r.Text}
}

// Enqueue validates the recipient and stores a pending delivery record.
func (h *Handler) Enqueue(c *gin.Context) {
	var body sendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.svc.Enqueue(c.Request.Context(), body.toMailer())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":        receipt.ID,
		"recipient": receipt.Recipient,
		"status":    queue.LogQueued,
	})
}

// Direct sends through the configured provider without queueing.
func (h *Handler) Direct(c *gin.Context) {
	var body sendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	to, err := h.svc.SendDirect(c.Request.Context(), body.toMailer())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipient": to, "status": queue.LogSuccess})
}

// History returns recent activity log entries, newest first.
func (h *Handler) History(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	entries, err := h.svc.History(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Queue dumps stored records, optionally filtered by delivery state.
func (h *Handler) Queue(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	state := queue.DeliveryState(strings.ToUpper(c.Query("state")))
	if state != "" && !state.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be one of PENDING, SUCCESS, ERROR"})
		return
	}

	tasks, err := h.svc.Pending(c.Request.Context(), store.Filter{State: state, Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// writeError maps service errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case address.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, mailer.ErrNoDirectProvider):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task store unavailable"})
	case errors.Is(err, mailer.ErrSend):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
