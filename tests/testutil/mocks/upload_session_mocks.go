package mocks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
)

// MockUploadSessionRepository is a mock of repository.UploadSessionRepository
type MockUploadSessionRepository struct {
	mock.Mock
}

func NewMockUploadSessionRepository(t *testing.T) *MockUploadSessionRepository {
	m := &MockUploadSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUploadSessionRepository) Create(ctx context.Context, session *entity.UploadSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockUploadSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.UploadSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UploadSession), args.Error(1)
}

func (m *MockUploadSessionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.UploadSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UploadSession), args.Error(1)
}

func (m *MockUploadSessionRepository) FindActiveByIdentity(ctx context.Context, ownerID, transferID, fileID uuid.UUID) (*entity.UploadSession, error) {
	args := m.Called(ctx, ownerID, transferID, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UploadSession), args.Error(1)
}

func (m *MockUploadSessionRepository) Update(ctx context.Context, session *entity.UploadSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockUploadSessionRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.UploadSession, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.UploadSession), args.Error(1)
}
