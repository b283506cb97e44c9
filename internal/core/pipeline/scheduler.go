package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// JobProcessor is the slice of *Processor the scheduler needs.
type JobProcessor interface {
	Process(ctx context.Context, req *domain.VerificationRequest) (Outcome, error)
}

// SchedulerConfig drives the claim loop.
type SchedulerConfig struct {
	WorkerID     string
	BatchSize    int
	PollInterval time.Duration
	LeaseTimeout time.Duration
	DrainTimeout time.Duration
	Concurrency  int
}

// Scheduler periodically claims a small batch and feeds it to the processor.
// Mutual exclusion between workers comes only from the store's atomic claim.
type Scheduler struct {
	repo      ports.VerificationRepository
	processor JobProcessor
	cfg       SchedulerConfig
	now       func() time.Time
	log       zerolog.Logger

	// slots bounds jobs in flight across ticks and on-demand triggers.
	// A slot is taken before the claim, so nothing is leased without capacity.
	slots    chan struct{}
	inflight sync.WaitGroup

	// jobs is cancelled only when draining overruns DrainTimeout.
	jobs       context.Context
	cancelJobs context.CancelFunc

	mu       sync.Mutex
	stopping bool
}

// NewScheduler creates a scheduler; zero config values fall back to defaults.
func NewScheduler(
	repo ports.VerificationRepository,
	processor JobProcessor,
	cfg SchedulerConfig,
	baseLogger *zerolog.Logger,
) *Scheduler {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 5 * time.Minute
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	jobs, cancelJobs := context.WithCancel(context.Background())
	return &Scheduler{
		repo:       repo,
		processor:  processor,
		cfg:        cfg,
		now:        time.Now,
		log:        baseLogger.With().Str("component", "scheduler").Str("worker_id", cfg.WorkerID).Logger(),
		slots:      make(chan struct{}, cfg.Concurrency),
		jobs:       jobs,
		cancelJobs: cancelJobs,
	}
}

// Run blocks until ctx is cancelled, then drains in-flight jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().
		Dur("interval", s.cfg.PollInterval).
		Int("batch_size", s.cfg.BatchSize).
		Int("concurrency", s.cfg.Concurrency).
		Msg("Scheduler loop started")

	go s.watchShutdown(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("Batch claim failed")
		}

		select {
		case <-ctx.Done():
			s.markStopping()
			s.inflight.Wait()
			s.cancelJobs()
			s.log.Info().Msg("Scheduler stopped gracefully")
			return nil
		case <-ticker.C:
		}
	}
}

// watchShutdown stops new claims once ctx is done. Jobs still running after
// DrainTimeout are cancelled; the processor hands their rows back.
func (s *Scheduler) watchShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-s.jobs.Done():
		return
	}

	s.markStopping()
	s.log.Info().Dur("drain_timeout", s.cfg.DrainTimeout).Msg("Scheduler stopping, waiting for in-flight jobs")

	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.log.Warn().Msg("Drain timeout reached, interrupting in-flight jobs")
		s.cancelJobs()
	case <-s.jobs.Done():
	}
}

// markStopping makes every later reserve fail. It is taken under mu so no
// in-flight Add can race the drain's Wait.
func (s *Scheduler) markStopping() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
}

// RunOnce claims at most one batch, limited by free slots, and processes
// it before returning.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if ctx.Err() != nil {
		return 0, nil
	}
	reserved := s.reserve(s.cfg.BatchSize)
	if reserved == 0 {
		return 0, nil
	}

	jobs, err := s.repo.ClaimBatch(ctx, s.claimParams(reserved))
	if err != nil {
		s.unreserve(reserved)
		return 0, fmt.Errorf("claim batch: %w", err)
	}
	s.unreserve(reserved - len(jobs))
	if len(jobs) == 0 {
		return 0, nil
	}
	s.log.Info().Int("claimed", len(jobs)).Msg("Claimed batch")

	var g errgroup.Group
	for _, job := range jobs {
		g.Go(func() error {
			defer s.unreserve(1)
			s.processOne(s.jobs, job)
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs), nil
}

// Trigger claims synchronously and processes in the background. With a nil
// id it behaves like one tick; otherwise it claims only that request.
// It claims nothing when every slot is busy or the scheduler is stopping.
func (s *Scheduler) Trigger(ctx context.Context, id *uuid.UUID) (int, error) {
	want := s.cfg.BatchSize
	if id != nil {
		want = 1
	}
	reserved := s.reserve(want)
	if reserved == 0 {
		s.log.Debug().Bool("by_id", id != nil).Msg("No free slot, leaving the claim to a later tick")
		return 0, nil
	}

	var jobs []*domain.VerificationRequest
	if id != nil {
		job, err := s.repo.ClaimByID(ctx, *id, s.claimParams(1))
		if err != nil {
			s.unreserve(reserved)
			return 0, fmt.Errorf("claim by id: %w", err)
		}
		if job != nil {
			jobs = append(jobs, job)
		}
	} else {
		var err error
		jobs, err = s.repo.ClaimBatch(ctx, s.claimParams(reserved))
		if err != nil {
			s.unreserve(reserved)
			return 0, fmt.Errorf("claim batch: %w", err)
		}
	}
	s.unreserve(reserved - len(jobs))

	for _, job := range jobs {
		go func() {
			defer s.unreserve(1)
			s.processOne(s.jobs, job)
		}()
	}
	if len(jobs) > 0 {
		s.log.Info().Int("claimed", len(jobs)).Bool("by_id", id != nil).Msg("Triggered claim")
	}
	return len(jobs), nil
}

// Wait blocks until every dispatched job has finished.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// reserve takes up to n free slots without blocking and counts them as in
// flight. It returns 0 once the scheduler is stopping.
func (s *Scheduler) reserve(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return 0
	}
	got := 0
fill:
	for got < n {
		select {
		case s.slots <- struct{}{}:
			got++
		default:
			break fill
		}
	}
	s.inflight.Add(got)
	return got
}

func (s *Scheduler) unreserve(n int) {
	for i := 0; i < n; i++ {
		<-s.slots
		s.inflight.Done()
	}
}

// processOne isolates one job so a failure cannot affect the rest of the batch.
func (s *Scheduler) processOne(ctx context.Context, job *domain.VerificationRequest) {
	log := s.log.With().Str("request_id", job.ID.String()).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Processor panicked outside its own recovery")
		}
	}()

	outcome, err := s.processor.Process(ctx, job)
	if err != nil {
		log.Error().Err(err).Msg("Job finished with a store error; lease expiry will reclaim it")
		return
	}
	log.Debug().Str("outcome", string(outcome)).Msg("Job finished")
}

func (s *Scheduler) claimParams(limit int) ports.ClaimParams {
	return ports.ClaimParams{
		WorkerID:     s.cfg.WorkerID,
		Limit:        limit,
		LeaseTimeout: s.cfg.LeaseTimeout,
		Now:          s.now().UTC(),
	}
}
