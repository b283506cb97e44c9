package services

import (
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/ports"
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockVerificationRepository struct {
	mock.Mock
}

func (m *MockVerificationRepository) request(args mock.Arguments) *domain.VerificationRequest {
	if r := args.Get(0); r != nil {
		return r.(*domain.VerificationRequest)
	}
	return nil
}

func (m *MockVerificationRepository) ClaimBatch(ctx context.Context, p ports.ClaimParams) ([]*domain.VerificationRequest, error) {
	args := m.Called(ctx, p)
	if r := args.Get(0); r != nil {
		return r.([]*domain.VerificationRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockVerificationRepository) ClaimByID(ctx context.Context, id uuid.UUID, p ports.ClaimParams) (*domain.VerificationRequest, error) {
	args := m.Called(ctx, id, p)
	return m.request(args), args.Error(1)
}

func (m *MockVerificationRepository) CompleteClassified(ctx context.Context, workerID string, out ports.ClassifiedOutcome) error {
	return m.Called(ctx, workerID, out).Error(0)
}

func (m *MockVerificationRepository) ScheduleRetry(ctx context.Context, workerID string, out ports.RetryOutcome) error {
	return m.Called(ctx, workerID, out).Error(0)
}

func (m *MockVerificationRepository) RejectExhausted(ctx context.Context, workerID string, out ports.ExhaustedOutcome) error {
	return m.Called(ctx, workerID, out).Error(0)
}

func (m *MockVerificationRepository) ReleaseLease(ctx context.Context, workerID string, id uuid.UUID) error {
	return m.Called(ctx, workerID, id).Error(0)
}

func (m *MockVerificationRepository) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.VerificationRequest, error) {
	args := m.Called(ctx, id, userID)
	return m.request(args), args.Error(1)
}

func (m *MockVerificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error) {
	args := m.Called(ctx, id)
	return m.request(args), args.Error(1)
}

func (m *MockVerificationRepository) CreateOrGetOpen(ctx context.Context, userID uuid.UUID, filePath string) (*domain.VerificationRequest, bool, error) {
	args := m.Called(ctx, userID, filePath)
	return m.request(args), args.Bool(1), args.Error(2)
}

func (m *MockVerificationRepository) Decide(ctx context.Context, d ports.ModerationDecision) (*domain.VerificationRequest, error) {
	args := m.Called(ctx, d)
	return m.request(args), args.Error(1)
}

type MockNudger struct {
	mock.Mock
}

func (m *MockNudger) Nudge(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, topic string, data interface{}) error {
	return m.Called(ctx, topic, data).Error(0)
}

func (m *MockEventBus) Subscribe(topic string, handler ports.EventHandler) {
	m.Called(topic, handler)
}
