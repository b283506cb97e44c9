package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Triggerer is the on-demand claim entry point (Scheduler.Trigger).
type Triggerer interface {
	Trigger(ctx context.Context, id *uuid.UUID) (int, error)
}

type workerHandler struct {
	trigger  Triggerer
	workerID string
	log      zerolog.Logger
}

type processRequest struct {
	RequestID string `json:"requestId"`
}

type processResponse struct {
	OK      bool `json:"ok"`
	Claimed int  `json:"claimed"`
}

type healthResponse struct {
	OK     bool   `json:"ok"`
	Worker string `json:"worker,omitempty"`
}

// NewWorkerRouter serves the worker's trigger and health endpoints.
func NewWorkerRouter(trigger Triggerer, workerID, sharedSecret string, baseLogger *zerolog.Logger) *gin.Engine {
	log := baseLogger.With().Str("component", "worker_http").Logger()
	h := &workerHandler{trigger: trigger, workerID: workerID, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))

	r.GET("/health", h.health)
	r.POST("/process-ocr", RequireSharedSecret(sharedSecret), h.processOCR)
	return r
}

func (h *workerHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{OK: true, Worker: h.workerID})
}

// processOCR claims synchronously and returns before the jobs finish.
func (h *workerHandler) processOCR(c *gin.Context) {
	var body processRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorBody("invalid_body"))
		return
	}

	var id *uuid.UUID
	if body.RequestID != "" {
		parsed, err := uuid.Parse(body.RequestID)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid_request_id"))
			return
		}
		id = &parsed
	}

	claimed, err := h.trigger.Trigger(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Msg("Triggered claim failed")
		c.JSON(http.StatusInternalServerError, errorBody("internal_error"))
		return
	}
	c.JSON(http.StatusOK, processResponse{OK: true, Claimed: claimed})
}
