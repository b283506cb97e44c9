// Package pipeline runs claimed verification jobs: fetch, OCR, classify, finalize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StudentVerify/internal/core/classifier"
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"

	"github.com/rs/zerolog"
)

// Outcome is what happened to one claimed job.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeRejected  Outcome = "rejected"
	OutcomeRetry     Outcome = "retry"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeReleased  Outcome = "released"
)

const finalizeTimeout = 10 * time.Second

// ProcessorConfig holds the retry policy knobs.
type ProcessorConfig struct {
	WorkerID     string
	MaxAttempts  int
	PreviewChars int
}

// Processor executes one claimed job end to end.
type Processor struct {
	repo       ports.VerificationRepository
	fetcher    ports.DocumentFetcher
	ocr        ports.OCRProvider
	classifier *classifier.Classifier
	bus        ports.EventBus
	cfg        ProcessorConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewProcessor wires the processor. bus may be nil.
func NewProcessor(
	repo ports.VerificationRepository,
	fetcher ports.DocumentFetcher,
	ocr ports.OCRProvider,
	cls *classifier.Classifier,
	bus ports.EventBus,
	cfg ProcessorConfig,
	baseLogger *zerolog.Logger,
) *Processor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	return &Processor{
		repo:       repo,
		fetcher:    fetcher,
		ocr:        ocr,
		classifier: cls,
		bus:        bus,
		cfg:        cfg,
		now:        time.Now,
		log:        baseLogger.With().Str("component", "job_processor").Str("worker_id", cfg.WorkerID).Logger(),
	}
}

// Process runs one job that this worker has claimed. Pipeline failures are
// persisted as retry or rejection; the returned error is only non-nil when
// the final write itself failed. Every exit path writes a row without a lease.
func (p *Processor) Process(ctx context.Context, req *domain.VerificationRequest) (outcome Outcome, err error) {
	log := p.log.With().
		Str("request_id", req.ID.String()).
		Int("attempt", req.AttemptCount).
		Logger()

	stage := domain.StageDownload
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stage", stage).Msg("Job panicked")
			outcome, err = p.fail(ctx, req, domain.NewStageError(stage, domain.CodePanic, fmt.Sprint(r)), log)
		}
	}()

	// 0. A reclaimed row can arrive past its budget if a worker died mid-job.
	if req.AttemptCount > p.cfg.MaxAttempts {
		log.Warn().Msg("Reclaimed job is over its attempt budget")
		return p.exhaust(ctx, req, "lease_expired", domain.StageFinalize, log)
	}

	// 1. Download
	doc, err := p.fetcher.Fetch(ctx, req.FilePath)
	if err != nil {
		if ctx.Err() != nil {
			return p.release(ctx, req, log)
		}
		return p.fail(ctx, req, err, log)
	}

	// 2. OCR
	stage = domain.StageOCR
	text, err := p.ocr.ExtractText(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return p.release(ctx, req, log)
		}
		return p.fail(ctx, req, err, log)
	}

	// 3. Classify
	stage = domain.StageClassify
	res := p.classifier.Classify(text)
	sig := res.Signals
	sig.WorkerID = p.cfg.WorkerID
	sig.Attempt = req.AttemptCount
	sig.OCRProvider = p.ocr.Name()
	sig.At = p.now().UTC()

	out := ports.ClassifiedOutcome{
		RequestID:      req.ID,
		UserID:         req.UserID,
		Passed:         res.Passed,
		Matches:        res.Matches,
		OCRTextPreview: classifier.Preview(text, p.cfg.PreviewChars),
		Signals:        sig,
	}
	if !res.Passed {
		reason := domain.RejectReasonKeywordNotMatched
		out.LastError = &reason
	}

	// 4. Finalize
	stage = domain.StageFinalize
	wctx, cancel := p.writeContext(ctx)
	defer cancel()
	if err := p.repo.CompleteClassified(wctx, p.cfg.WorkerID, out); err != nil {
		log.Error().Err(err).Bool("passed", res.Passed).Msg("Failed to persist classification")
		return "", err
	}

	event := ports.VerificationEvent{
		RequestID: req.ID,
		UserID:    req.UserID,
		Matches:   res.Matches,
		Preview:   out.OCRTextPreview,
		Signals:   sig,
	}
	if res.Passed {
		log.Info().Int("matches", res.Matches).Strs("markers", sig.Markers).Msg("Document passed, awaiting moderation")
		event.Status = domain.StatusPending
		p.publish(ctx, ports.TopicVerificationPending, event, log)
		return OutcomePending, nil
	}

	log.Info().Int("matches", res.Matches).Msg("Document rejected by classifier")
	event.Status = domain.StatusRejected
	event.LastError = domain.RejectReasonKeywordNotMatched
	p.publish(ctx, ports.TopicVerificationRejected, event, log)
	return OutcomeRejected, nil
}

// fail routes a transient failure to retry or, once out of attempts, rejection.
func (p *Processor) fail(ctx context.Context, req *domain.VerificationRequest, cause error, log zerolog.Logger) (Outcome, error) {
	msg, stage := describeFailure(cause)
	log.Warn().Str("stage", stage).Str("error", msg).Msg("Attempt failed")

	if req.AttemptCount >= p.cfg.MaxAttempts {
		return p.exhaust(ctx, req, msg, stage, log)
	}

	now := p.now().UTC()
	delay := BackoffFor(req.AttemptCount)
	out := ports.RetryOutcome{
		RequestID:   req.ID,
		NextRetryAt: now.Add(delay),
		LastError:   msg,
		Signals:     p.failureSignals(req, stage, msg, now),
	}

	wctx, cancel := p.writeContext(ctx)
	defer cancel()
	if err := p.repo.ScheduleRetry(wctx, p.cfg.WorkerID, out); err != nil {
		log.Error().Err(err).Msg("Failed to schedule retry")
		return "", err
	}
	log.Info().Dur("backoff", delay).Time("next_retry_at", out.NextRetryAt).Msg("Retry scheduled")
	return OutcomeRetry, nil
}

func (p *Processor) exhaust(ctx context.Context, req *domain.VerificationRequest, msg, stage string, log zerolog.Logger) (Outcome, error) {
	lastError := domain.CodeMaxAttempts + ":" + msg
	out := ports.ExhaustedOutcome{
		RequestID: req.ID,
		UserID:    req.UserID,
		LastError: lastError,
		Signals:   p.failureSignals(req, stage, msg, p.now().UTC()),
	}

	wctx, cancel := p.writeContext(ctx)
	defer cancel()
	if err := p.repo.RejectExhausted(wctx, p.cfg.WorkerID, out); err != nil {
		log.Error().Err(err).Msg("Failed to reject exhausted job")
		return "", err
	}
	log.Warn().Str("last_error", lastError).Msg("Job rejected after max attempts")

	p.publish(ctx, ports.TopicVerificationRejected, ports.VerificationEvent{
		RequestID: req.ID,
		UserID:    req.UserID,
		Status:    domain.StatusRejected,
		Signals:   out.Signals,
		LastError: lastError,
	}, log)
	return OutcomeExhausted, nil
}

// release hands the row back with its attempt refunded when the job's own
// context was cancelled.
func (p *Processor) release(ctx context.Context, req *domain.VerificationRequest, log zerolog.Logger) (Outcome, error) {
	wctx, cancel := p.writeContext(ctx)
	defer cancel()
	if err := p.repo.ReleaseLease(wctx, p.cfg.WorkerID, req.ID); err != nil {
		log.Error().Err(err).Msg("Failed to release interrupted job")
		return "", err
	}
	log.Info().Msg("Job interrupted by shutdown, returned to the queue")
	return OutcomeReleased, nil
}

func (p *Processor) failureSignals(req *domain.VerificationRequest, stage, msg string, at time.Time) domain.Signals {
	return domain.Signals{
		WorkerID:    p.cfg.WorkerID,
		Attempt:     req.AttemptCount,
		Stage:       stage,
		KeywordHits: []string{},
		Markers:     []string{},
		OCRProvider: p.ocr.Name(),
		Error:       msg,
		At:          at,
	}
}

// writeContext survives shutdown cancellation so the lease is always released.
func (p *Processor) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}

func (p *Processor) publish(ctx context.Context, topic string, event ports.VerificationEvent, log zerolog.Logger) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, topic, event); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to publish verification event")
	}
}

// describeFailure renders the persisted form of a failure.
func describeFailure(err error) (msg, stage string) {
	var se *domain.StageError
	if errors.As(err, &se) {
		return se.Error(), se.Stage
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout", domain.StageFinalize
	}
	return "unexpected_error", domain.StageFinalize
}
