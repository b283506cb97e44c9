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

const nudgeTimeout = 5 * time.Second

// SubmissionService creates verification requests and wakes a worker.
type SubmissionService struct {
	repo   ports.VerificationRepository
	nudger ports.Nudger
	log    zerolog.Logger
}

// NewSubmissionService wires the service. nudger may be nil; the poll loop still picks rows up.
func NewSubmissionService(repo ports.VerificationRepository, nudger ports.Nudger, baseLogger *zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		repo:   repo,
		nudger: nudger,
		log:    baseLogger.With().Str("component", "submission_service").Logger(),
	}
}

// Submit is idempotent while the user has an open request.
func (s *SubmissionService) Submit(ctx context.Context, userID uuid.UUID, filePath string) (*domain.VerificationRequest, bool, error) {
	// 1. Ownership of the storage object
	filePath = strings.TrimSpace(filePath)
	if err := ValidateFilePath(userID, filePath); err != nil {
		return nil, false, err
	}

	// 2. Create or reuse
	req, created, err := s.repo.CreateOrGetOpen(ctx, userID, filePath)
	if err != nil {
		return nil, false, err
	}

	log := s.log.With().Str("request_id", req.ID.String()).Str("user_id", userID.String()).Logger()
	if created {
		log.Info().Msg("Verification request created")
	} else {
		log.Info().Str("status", string(req.Status)).Msg("Returning existing open request")
	}

	// 3. Best-effort nudge
	if req.Status == domain.StatusPendingOCR {
		s.nudge(ctx, req.ID, log)
	}
	return req, created, nil
}

func (s *SubmissionService) nudge(ctx context.Context, id uuid.UUID, log zerolog.Logger) {
	if s.nudger == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), nudgeTimeout)
	defer cancel()
	if err := s.nudger.Nudge(nctx, id); err != nil {
		log.Warn().Err(err).Msg("Worker nudge failed; the poll loop will pick the request up")
	}
}

// ValidateFilePath requires a relative object key under "<userID>/".
func ValidateFilePath(userID uuid.UUID, path string) error {
	prefix := userID.String() + "/"
	switch {
	case !strings.HasPrefix(path, prefix), len(path) == len(prefix):
		return domain.ErrForbiddenPath
	case strings.Contains(path, "\\"), strings.Contains(path, "://"):
		return domain.ErrForbiddenPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return domain.ErrForbiddenPath
		}
	}
	return nil
}
