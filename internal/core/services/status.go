// Package services holds the use cases behind the HTTP API and the moderator bot.
package services

import (
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StatusMeta is diagnostic detail safe to show the owner.
type StatusMeta struct {
	AttemptCount int
	NextRetryAt  *time.Time
	LastError    string // category only, e.g. "ocr_failed"
	OCRProvider  string
}

// StatusView is what the upload screen polls.
type StatusView struct {
	Request    *domain.VerificationRequest
	UIState    domain.UIState
	RetryAfter time.Duration
	Message    string
	Meta       StatusMeta
}

// StatusService answers status queries for the request owner.
type StatusService struct {
	repo ports.VerificationRepository
	log  zerolog.Logger
}

func NewStatusService(repo ports.VerificationRepository, baseLogger *zerolog.Logger) *StatusService {
	return &StatusService{
		repo: repo,
		log:  baseLogger.With().Str("component", "status_service").Logger(),
	}
}

// Get returns domain.ErrNotFound both for missing rows and rows owned by someone else.
func (s *StatusService) Get(ctx context.Context, userID, requestID uuid.UUID) (*StatusView, error) {
	req, err := s.repo.GetByIDForUser(ctx, requestID, userID)
	if err != nil {
		s.log.Error().Err(err).Str("request_id", requestID.String()).Msg("Status lookup failed")
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrNotFound
	}
	return BuildStatusView(req), nil
}

// BuildStatusView maps a row to the user-facing view.
func BuildStatusView(req *domain.VerificationRequest) *StatusView {
	ui := domain.UIStateFor(req.Status)
	view := &StatusView{
		Request:    req,
		UIState:    ui,
		RetryAfter: domain.PollIntervalFor(ui),
		Message:    StatusMessage(req),
		Meta: StatusMeta{
			AttemptCount: req.AttemptCount,
			NextRetryAt:  req.NextRetryAt,
		},
	}
	if req.LastError != nil {
		view.Meta.LastError = LastErrorCategory(*req.LastError)
	}
	if req.Signals != nil {
		view.Meta.OCRProvider = req.Signals.OCRProvider
	}
	return view
}

// LastErrorCategory strips everything after the first code, so provider
// messages never reach the client.
func LastErrorCategory(lastError string) string {
	if lastError == "" {
		return ""
	}
	code, _, _ := strings.Cut(lastError, ":")
	return code
}

// StatusMessage is the human-readable line shown under the upload widget.
func StatusMessage(req *domain.VerificationRequest) string {
	switch req.Status {
	case domain.StatusPendingOCR, domain.StatusProcessing:
		if req.LastError != nil && req.AttemptCount > 0 {
			return "We are having trouble reading your document and will retry shortly."
		}
		return "Your document is being processed."
	case domain.StatusPending:
		return "Document recognized. Waiting for a moderator to review it."
	case domain.StatusApproved:
		return "Your student status is verified."
	case domain.StatusRejected:
		if req.AdminComment != nil && strings.TrimSpace(*req.AdminComment) != "" {
			return "Rejected by a moderator: " + strings.TrimSpace(*req.AdminComment)
		}
		if req.LastError == nil {
			return "Your document was rejected. Please upload a new one."
		}
		switch LastErrorCategory(*req.LastError) {
		case domain.RejectReasonKeywordNotMatched:
			return "We could not recognize a student document. Please upload a clear photo of your student ID."
		case domain.CodeMaxAttempts:
			return "We could not process your document. Please try uploading it again."
		default:
			return "Your document was rejected. Please upload a new one."
		}
	default:
		return ""
	}
}
