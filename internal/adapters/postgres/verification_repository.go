package postgres

import (
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const requestColumns = `id, user_id, file_path, status, attempt_count, locked_by, locked_at,
	next_retry_at, last_error, ai_passed, matches, ocr_text_preview, ocr_signals,
	admin_comment, decided_by, decided_at, created_at, updated_at`

// claimablePredicate: due pending_ocr rows nobody holds, or leases gone stale.
// $1 worker, $2 now, $3 stale-before.
const claimablePredicate = `(
		(status = 'pending_ocr'
			AND (locked_at IS NULL OR locked_at < $3)
			AND (next_retry_at IS NULL OR next_retry_at <= $2))
		OR (status = 'processing' AND (locked_at IS NULL OR locked_at < $3))
	)`

const claimSet = `SET status = 'processing',
		locked_by = $1,
		locked_at = $2,
		attempt_count = attempt_count + 1,
		updated_at = $2`

type verificationRepository struct {
	db     *DB
	secSvc ports.SecurityPort
	log    zerolog.Logger
}

var _ ports.VerificationRepository = (*verificationRepository)(nil)

// NewVerificationRepository creates the Job Store. secSvc encrypts the OCR preview.
func NewVerificationRepository(db *DB, secSvc ports.SecurityPort, baseLogger *zerolog.Logger) ports.VerificationRepository {
	return &verificationRepository{
		db:     db,
		secSvc: secSvc,
		log:    baseLogger.With().Str("component", "verification_repo").Logger(),
	}
}

// ClaimBatch atomically claims up to p.Limit rows in one statement.
func (r *verificationRepository) ClaimBatch(ctx context.Context, p ports.ClaimParams) ([]*domain.VerificationRequest, error) {
	query := `
		UPDATE verification_requests ` + claimSet + `
		WHERE id IN (
			SELECT id FROM verification_requests
			WHERE ` + claimablePredicate + `
			ORDER BY COALESCE(next_retry_at, created_at), created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + requestColumns

	rows, err := r.db.pool.Query(ctx, query, p.WorkerID, p.Now, p.Now.Add(-p.LeaseTimeout), p.Limit)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to claim batch")
		return nil, err
	}
	defer rows.Close()

	var claimed []*domain.VerificationRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, req)
	}
	if err := rows.Err(); err != nil {
		r.log.Error().Err(err).Msg("Claim batch iteration failed")
		return nil, err
	}
	return claimed, nil
}

// ClaimByID atomically claims one row; nil, nil when it is not claimable.
func (r *verificationRepository) ClaimByID(ctx context.Context, id uuid.UUID, p ports.ClaimParams) (*domain.VerificationRequest, error) {
	query := `
		UPDATE verification_requests ` + claimSet + `
		WHERE id IN (
			SELECT id FROM verification_requests
			WHERE id = $4 AND ` + claimablePredicate + `
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + requestColumns

	row := r.db.pool.QueryRow(ctx, query, p.WorkerID, p.Now, p.Now.Add(-p.LeaseTimeout), id)
	req, err := r.scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

// CompleteClassified finalizes a classified job, its profile mirror and
// (on rejection) the notification in one transaction.
func (r *verificationRepository) CompleteClassified(ctx context.Context, workerID string, out ports.ClassifiedOutcome) error {
	status := domain.StatusPending
	if !out.Passed {
		status = domain.StatusRejected
	}

	// 1. Encrypt the preview
	var preview *string
	if out.OCRTextPreview != "" {
		enc, err := r.secSvc.EncryptString(out.OCRTextPreview)
		if err != nil {
			r.log.Error().Err(err).Msg("Failed to encrypt OCR preview")
			return err
		}
		preview = &enc
	}

	signals, err := json.Marshal(out.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}

	// 2. Write everything atomically
	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE verification_requests
			SET status = $3, ai_passed = $4, matches = $5, ocr_text_preview = $6,
				ocr_signals = $7, last_error = $8, next_retry_at = NULL,
				locked_by = NULL, locked_at = NULL, updated_at = now()
			WHERE id = $1 AND locked_by = $2 AND status = 'processing'`,
			out.RequestID, workerID, status, out.Passed, out.Matches, preview, signals, out.LastError,
		)
		if err != nil {
			r.log.Error().Err(err).Str("request_id", out.RequestID.String()).Msg("Failed to update classified request")
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrLeaseLost
		}

		if err := mirrorProfile(ctx, tx, domain.MirrorFor(out.UserID, status)); err != nil {
			return err
		}
		if status == domain.StatusRejected {
			return insertNotification(ctx, tx, out.UserID, domain.NotifyVerificationRejected, map[string]any{
				"request_id": out.RequestID,
				"reason":     domain.RejectReasonKeywordNotMatched,
			})
		}
		return nil
	})
}

// ScheduleRetry releases the lease and parks the row until NextRetryAt.
func (r *verificationRepository) ScheduleRetry(ctx context.Context, workerID string, out ports.RetryOutcome) error {
	signals, err := json.Marshal(out.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE verification_requests
		SET status = 'pending_ocr', next_retry_at = $3, last_error = $4, ocr_signals = $5,
			locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $2 AND status = 'processing'`,
		out.RequestID, workerID, out.NextRetryAt, out.LastError, signals,
	)
	if err != nil {
		r.log.Error().Err(err).Str("request_id", out.RequestID.String()).Msg("Failed to schedule retry")
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// RejectExhausted finalizes a job that ran out of attempts.
func (r *verificationRepository) RejectExhausted(ctx context.Context, workerID string, out ports.ExhaustedOutcome) error {
	signals, err := json.Marshal(out.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}

	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE verification_requests
			SET status = 'rejected', ai_passed = FALSE, last_error = $3, ocr_signals = $4,
				next_retry_at = NULL, locked_by = NULL, locked_at = NULL, updated_at = now()
			WHERE id = $1 AND locked_by = $2 AND status = 'processing'`,
			out.RequestID, workerID, out.LastError, signals,
		)
		if err != nil {
			r.log.Error().Err(err).Str("request_id", out.RequestID.String()).Msg("Failed to reject exhausted request")
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrLeaseLost
		}

		if err := mirrorProfile(ctx, tx, domain.MirrorFor(out.UserID, domain.StatusRejected)); err != nil {
			return err
		}
		return insertNotification(ctx, tx, out.UserID, domain.NotifyVerificationRejected, map[string]any{
			"request_id": out.RequestID,
			"reason":     domain.CodeMaxAttempts,
		})
	})
}

// ReleaseLease returns a row interrupted by shutdown to the queue, due now.
func (r *verificationRepository) ReleaseLease(ctx context.Context, workerID string, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE verification_requests
		SET status = 'pending_ocr', attempt_count = GREATEST(attempt_count - 1, 0),
			next_retry_at = NULL, locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $2 AND status = 'processing'`,
		id, workerID,
	)
	if err != nil {
		r.log.Error().Err(err).Str("request_id", id.String()).Msg("Failed to release lease")
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// GetByIDForUser returns nil, nil unless userID owns the row.
func (r *verificationRepository) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1 AND user_id = $2`
	req, err := r.scanRequest(r.db.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

// GetByID returns nil, nil when absent.
func (r *verificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1`
	req, err := r.scanRequest(r.db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

// CreateOrGetOpen is idempotent per user: an open request is returned as is.
// The partial unique index settles concurrent submissions.
func (r *verificationRepository) CreateOrGetOpen(ctx context.Context, userID uuid.UUID, filePath string) (*domain.VerificationRequest, bool, error) {
	// 1. Fast path: an open request already exists
	existing, err := r.findOpen(ctx, userID)
	if err != nil || existing != nil {
		return existing, false, err
	}

	// 2. Insert, mirroring the profile to pending
	var created *domain.VerificationRequest
	err = r.db.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO verification_requests (user_id, file_path, status)
			VALUES ($1, $2, 'pending_ocr')
			RETURNING `+requestColumns,
			userID, filePath,
		)
		req, err := r.scanRequest(row)
		if err != nil {
			return err
		}
		created = req
		return mirrorProfile(ctx, tx, domain.MirrorFor(userID, domain.StatusPendingOCR))
	})

	// 3. Lost the race to a concurrent submission: return the winner
	if isUniqueViolation(err) {
		r.log.Info().Str("user_id", userID.String()).Msg("Concurrent submission, returning existing request")
		existing, err := r.findOpen(ctx, userID)
		return existing, false, err
	}
	if err != nil {
		r.log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to create verification request")
		return nil, false, err
	}
	return created, true, nil
}

func (r *verificationRepository) findOpen(ctx context.Context, userID uuid.UUID) (*domain.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests
		WHERE user_id = $1 AND status IN ('pending_ocr', 'processing', 'pending')
		ORDER BY created_at DESC LIMIT 1`
	req, err := r.scanRequest(r.db.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

// Decide moves a 'pending' row to approved or rejected.
func (r *verificationRepository) Decide(ctx context.Context, d ports.ModerationDecision) (*domain.VerificationRequest, error) {
	status := domain.StatusRejected
	kind := domain.NotifyVerificationRejected
	if d.Approve {
		status = domain.StatusApproved
		kind = domain.NotifyVerificationApproved
	}

	var decided *domain.VerificationRequest
	err := r.db.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE verification_requests
			SET status = $2, admin_comment = $3, decided_by = $4, decided_at = now(), updated_at = now()
			WHERE id = $1 AND status = 'pending'
			RETURNING `+requestColumns,
			d.RequestID, status, d.Comment, d.ModeratorID,
		)
		req, err := r.scanRequest(row)
		if err != nil {
			return err
		}
		decided = req

		if err := mirrorProfile(ctx, tx, domain.MirrorFor(req.UserID, status)); err != nil {
			return err
		}
		payload := map[string]any{"request_id": req.ID}
		if d.Comment != nil {
			payload["comment"] = *d.Comment
		}
		return insertNotification(ctx, tx, req.UserID, kind, payload)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := r.GetByID(ctx, d.RequestID)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, domain.ErrNotFound
		}
		return existing, domain.ErrInvalidTransition
	}
	if err != nil {
		r.log.Error().Err(err).Str("request_id", d.RequestID.String()).Msg("Failed to apply moderation decision")
		return nil, err
	}
	return decided, nil
}

func mirrorProfile(ctx context.Context, tx pgx.Tx, m domain.ProfileMirror) error {
	var status *string
	if m.VerificationStatus != nil {
		s := string(*m.VerificationStatus)
		status = &s
	}
	// Upsert: the profile row may not exist yet for brand new accounts.
	_, err := tx.Exec(ctx, `
		INSERT INTO profiles (id, is_verified, verification_status, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET is_verified = EXCLUDED.is_verified,
			verification_status = EXCLUDED.verification_status,
			updated_at = now()`,
		m.UserID, m.IsVerified, status,
	)
	if err != nil {
		return fmt.Errorf("mirror profile: %w", err)
	}
	return nil
}

func insertNotification(ctx context.Context, tx pgx.Tx, userID uuid.UUID, kind domain.NotificationKind, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO notifications (user_id, kind, payload) VALUES ($1, $2, $3)`,
		userID, kind, body,
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// scanRequest scans one row and decrypts the preview.
func (r *verificationRepository) scanRequest(row pgx.Row) (*domain.VerificationRequest, error) {
	var req domain.VerificationRequest
	var status string
	var encPreview *string
	var signals []byte

	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.FilePath,
		&status,
		&req.AttemptCount,
		&req.LockedBy,
		&req.LockedAt,
		&req.NextRetryAt,
		&req.LastError,
		&req.AIPassed,
		&req.Matches,
		&encPreview,
		&signals,
		&req.AdminComment,
		&req.DecidedBy,
		&req.DecidedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		r.log.Error().Err(err).Msg("Failed to scan verification request row")
		return nil, err
	}
	req.Status = domain.RequestStatus(status)

	if len(signals) > 0 {
		var sig domain.Signals
		if err := json.Unmarshal(signals, &sig); err != nil {
			r.log.Warn().Err(err).Str("request_id", req.ID.String()).Msg("Ignoring malformed ocr_signals")
		} else {
			req.Signals = &sig
		}
	}

	if encPreview != nil {
		plain, err := r.secSvc.DecryptString(*encPreview)
		if err != nil {
			// A bad preview must not hide the request itself.
			r.log.Warn().Err(err).Str("request_id", req.ID.String()).Msg("Failed to decrypt OCR preview")
		} else {
			req.OCRTextPreview = &plain
		}
	}
	return &req, nil
}
