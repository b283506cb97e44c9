package httpapi

import (
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/services"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StatusReader is the slice of services.StatusService used here.
type StatusReader interface {
	Get(ctx context.Context, userID, requestID uuid.UUID) (*services.StatusView, error)
}

// Submitter is the slice of services.SubmissionService used here.
type Submitter interface {
	Submit(ctx context.Context, userID uuid.UUID, filePath string) (*domain.VerificationRequest, bool, error)
}

type appHandler struct {
	status StatusReader
	submit Submitter
	log    zerolog.Logger
}

type requestDTO struct {
	ID           uuid.UUID  `json:"id"`
	Status       string     `json:"status"`
	AttemptCount int        `json:"attemptCount"`
	AIPassed     *bool      `json:"aiPassed"`
	Matches      int        `json:"matches"`
	AdminComment *string    `json:"adminComment"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DecidedAt    *time.Time `json:"decidedAt"`
}

type metaDTO struct {
	AttemptCount int        `json:"attemptCount"`
	NextRetryAt  *time.Time `json:"nextRetryAt"`
	LastError    *string    `json:"lastError"`
	OCRProvider  *string    `json:"ocrProvider"`
}

type statusResponse struct {
	OK           bool       `json:"ok"`
	Request      requestDTO `json:"request"`
	UIState      string     `json:"uiState"`
	RetryAfterMs int64      `json:"retryAfterMs"`
	Message      string     `json:"message"`
	Meta         metaDTO    `json:"meta"`
}

type submitRequest struct {
	FilePath string `json:"filePath" binding:"required"`
}

type submitResponse struct {
	OK        bool      `json:"ok"`
	RequestID uuid.UUID `json:"requestId"`
	Status    string    `json:"status"`
	Created   bool      `json:"created"`
}

// NewAppRouter serves the user-facing verification API.
func NewAppRouter(status StatusReader, submit Submitter, verifier *JWTVerifier, corsOrigins []string, baseLogger *zerolog.Logger) *gin.Engine {
	log := baseLogger.With().Str("component", "app_http").Logger()
	h := &appHandler{status: status, submit: submit, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))
	if len(corsOrigins) > 0 {
		r.Use(CORS(corsOrigins))
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, healthResponse{OK: true}) })

	api := r.Group("/api", RequireUser(verifier))
	api.GET("/verification-status", h.verificationStatus)
	api.POST("/verify-student", h.verifyStudent)
	return r
}

func (h *appHandler) verificationStatus(c *gin.Context) {
	requestID, err := uuid.Parse(c.Query("requestId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request_id"))
		return
	}

	view, err := h.status.Get(c.Request.Context(), userIDFrom(c), requestID)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody("not_found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("internal_error"))
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(view))
}

func (h *appHandler) verifyStudent(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_body"))
		return
	}

	req, created, err := h.submit.Submit(c.Request.Context(), userIDFrom(c), body.FilePath)
	if errors.Is(err, domain.ErrForbiddenPath) {
		c.JSON(http.StatusBadRequest, errorBody("invalid_file_path"))
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Submission failed")
		c.JSON(http.StatusInternalServerError, errorBody("internal_error"))
		return
	}

	c.JSON(http.StatusOK, submitResponse{
		OK:        true,
		RequestID: req.ID,
		Status:    string(req.Status),
		Created:   created,
	})
}

func toStatusResponse(v *services.StatusView) statusResponse {
	r := v.Request
	resp := statusResponse{
		OK: true,
		Request: requestDTO{
			ID:           r.ID,
			Status:       string(r.Status),
			AttemptCount: r.AttemptCount,
			AIPassed:     r.AIPassed,
			Matches:      r.Matches,
			AdminComment: r.AdminComment,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
			DecidedAt:    r.DecidedAt,
		},
		UIState:      string(v.UIState),
		RetryAfterMs: v.RetryAfter.Milliseconds(),
		Message:      v.Message,
		Meta: metaDTO{
			AttemptCount: v.Meta.AttemptCount,
			NextRetryAt:  v.Meta.NextRetryAt,
		},
	}
	if v.Meta.LastError != "" {
		resp.Meta.LastError = &v.Meta.LastError
	}
	if v.Meta.OCRProvider != "" {
		resp.Meta.OCRProvider = &v.Meta.OCRProvider
	}
	return resp
}
