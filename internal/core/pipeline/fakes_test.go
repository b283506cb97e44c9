package pipeline

import (
	"context"
	"sync"
	"time"

	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// fakeStore is an in-memory Job Store enforcing the same claim predicate
// and lease-guarded writes as the postgres repository.
type fakeStore struct {
	mu            sync.Mutex
	rows          map[uuid.UUID]*domain.VerificationRequest
	notifications []domain.Notification
	mirrors       []domain.ProfileMirror
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[uuid.UUID]*domain.VerificationRequest)}
}

func (s *fakeStore) add(req *domain.VerificationRequest) *domain.VerificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.UserID == uuid.Nil {
		req.UserID = uuid.New()
	}
	if req.Status == "" {
		req.Status = domain.StatusPendingOCR
	}
	if req.FilePath == "" {
		req.FilePath = req.UserID.String() + "/card.jpg"
	}
	s.rows[req.ID] = req
	return req
}

func (s *fakeStore) get(id uuid.UUID) domain.VerificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func claimable(r *domain.VerificationRequest, p ports.ClaimParams) bool {
	staleBefore := p.Now.Add(-p.LeaseTimeout)
	switch r.Status {
	case domain.StatusPendingOCR:
		unlocked := r.LockedBy == nil || r.LockedAt == nil || r.LockedAt.Before(staleBefore)
		due := r.NextRetryAt == nil || !r.NextRetryAt.After(p.Now)
		return unlocked && due
	case domain.StatusProcessing:
		return r.LockedAt == nil || r.LockedAt.Before(staleBefore)
	default:
		return false
	}
}

func (s *fakeStore) claim(r *domain.VerificationRequest, p ports.ClaimParams) *domain.VerificationRequest {
	worker := p.WorkerID
	at := p.Now
	r.Status = domain.StatusProcessing
	r.LockedBy = &worker
	r.LockedAt = &at
	r.AttemptCount++
	cp := *r
	return &cp
}

func (s *fakeStore) ClaimBatch(ctx context.Context, p ports.ClaimParams) ([]*domain.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.VerificationRequest
	for _, r := range s.rows {
		if len(out) == p.Limit {
			break
		}
		if claimable(r, p) {
			out = append(out, s.claim(r, p))
		}
	}
	return out, nil
}

func (s *fakeStore) ClaimByID(ctx context.Context, id uuid.UUID, p ports.ClaimParams) (*domain.VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || !claimable(r, p) {
		return nil, nil
	}
	return s.claim(r, p), nil
}

func (s *fakeStore) owned(id uuid.UUID, workerID string) (*domain.VerificationRequest, error) {
	r, ok := s.rows[id]
	if !ok || r.LockedBy == nil || *r.LockedBy != workerID {
		return nil, domain.ErrLeaseLost
	}
	return r, nil
}

func release(r *domain.VerificationRequest) {
	r.LockedBy = nil
	r.LockedAt = nil
}

func (s *fakeStore) CompleteClassified(ctx context.Context, workerID string, out ports.ClassifiedOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.owned(out.RequestID, workerID)
	if err != nil {
		return err
	}
	release(r)
	passed := out.Passed
	sig := out.Signals
	preview := out.OCRTextPreview
	r.AIPassed = &passed
	r.Matches = out.Matches
	r.Signals = &sig
	r.OCRTextPreview = &preview
	r.NextRetryAt = nil
	r.LastError = out.LastError
	if passed {
		r.Status = domain.StatusPending
	} else {
		r.Status = domain.StatusRejected
		s.notifications = append(s.notifications, domain.Notification{UserID: r.UserID, Kind: domain.NotifyVerificationRejected})
	}
	s.mirrors = append(s.mirrors, domain.MirrorFor(r.UserID, r.Status))
	return nil
}

func (s *fakeStore) ScheduleRetry(ctx context.Context, workerID string, out ports.RetryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.owned(out.RequestID, workerID)
	if err != nil {
		return err
	}
	release(r)
	next := out.NextRetryAt
	msg := out.LastError
	sig := out.Signals
	r.Status = domain.StatusPendingOCR
	r.NextRetryAt = &next
	r.LastError = &msg
	r.Signals = &sig
	return nil
}

func (s *fakeStore) RejectExhausted(ctx context.Context, workerID string, out ports.ExhaustedOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.owned(out.RequestID, workerID)
	if err != nil {
		return err
	}
	release(r)
	msg := out.LastError
	sig := out.Signals
	r.Status = domain.StatusRejected
	r.NextRetryAt = nil
	r.LastError = &msg
	r.Signals = &sig
	s.notifications = append(s.notifications, domain.Notification{UserID: r.UserID, Kind: domain.NotifyVerificationRejected})
	s.mirrors = append(s.mirrors, domain.MirrorFor(r.UserID, r.Status))
	return nil
}

func (s *fakeStore) ReleaseLease(ctx context.Context, workerID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.owned(id, workerID)
	if err != nil {
		return err
	}
	release(r)
	r.Status = domain.StatusPendingOCR
	r.NextRetryAt = nil
	if r.AttemptCount > 0 {
		r.AttemptCount--
	}
	return nil
}

func (s *fakeStore) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.VerificationRequest, error) {
	panic("not used by the pipeline")
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error) {
	panic("not used by the pipeline")
}

func (s *fakeStore) CreateOrGetOpen(ctx context.Context, userID uuid.UUID, filePath string) (*domain.VerificationRequest, bool, error) {
	panic("not used by the pipeline")
}

func (s *fakeStore) Decide(ctx context.Context, d ports.ModerationDecision) (*domain.VerificationRequest, error) {
	panic("not used by the pipeline")
}

// --- Mocks ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, path string) (*ports.Document, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.Document), args.Error(1)
}

type mockOCR struct {
	mock.Mock
}

func (m *mockOCR) Name() string { return "fake_ocr" }

func (m *mockOCR) ExtractText(ctx context.Context, doc *ports.Document) (string, error) {
	args := m.Called(ctx, doc)
	return args.String(0), args.Error(1)
}

// recordingBus collects published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []ports.Event
}

func (b *recordingBus) Publish(ctx context.Context, topic string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ports.Event{Topic: topic, Data: data})
	return nil
}

func (b *recordingBus) Subscribe(topic string, handler ports.EventHandler) {}

func (b *recordingBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.Topic)
	}
	return out
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func classifiedPass(req *domain.VerificationRequest) ports.ClassifiedOutcome {
	return ports.ClassifiedOutcome{
		RequestID: req.ID,
		UserID:    req.UserID,
		Passed:    true,
		Matches:   2,
		Signals:   domain.Signals{Attempt: req.AttemptCount},
	}
}
