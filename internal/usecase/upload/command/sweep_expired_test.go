package command_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload/command"
	"github.com/webcoletivo/coletivosend/tests/testutil/mocks"
)

func TestSweepExpiredCommand_Execute_AbortsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	sessionRepo := mocks.NewMockUploadSessionRepository(t)
	storage := mocks.NewMockMultipartStorage(t)
	txManager := mocks.NewMockTransactionManager(t)

	ownerID := uuid.New()
	expiredActive := newTestSession(ownerID, 1024, entity.UploadSessionStatusActive, time.Now().Add(-time.Hour))
	expiredFailed := newTestSession(ownerID, 1024, entity.UploadSessionStatusFailed, time.Now().Add(-time.Hour))

	sessionRepo.On("FindExpired", ctx, mock.AnythingOfType("time.Time"), 10).
		Return([]*entity.UploadSession{expiredActive, expiredFailed}, nil)
	sessionRepo.On("FindByIDForUpdate", ctx, expiredActive.ID).Return(expiredActive, nil)
	sessionRepo.On("FindByIDForUpdate", ctx, expiredFailed.ID).Return(expiredFailed, nil)
	sessionRepo.On("Update", ctx, mock.Anything).Return(nil)
	storage.On("AbortMultipartUpload", ctx, mock.Anything, mock.Anything).Return(nil)

	cmd := command.NewSweepExpiredCommand(sessionRepo, storage, txManager, 10)
	output, err := cmd.Execute(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, output.Swept)
	assert.True(t, expiredActive.IsAborted())
	assert.True(t, expiredFailed.IsAborted())
	storage.AssertNumberOfCalls(t, "AbortMultipartUpload", 2)
}

func TestSweepExpiredCommand_Execute_SkipsSessionsCompletedMeanwhile(t *testing.T) {
	ctx := context.Background()
	sessionRepo := mocks.NewMockUploadSessionRepository(t)
	storage := mocks.NewMockMultipartStorage(t)
	txManager := mocks.NewMockTransactionManager(t)

	ownerID := uuid.New()
	candidate := newTestSession(ownerID, 1024, entity.UploadSessionStatusActive, time.Now().Add(-time.Hour))
	locked := newTestSession(ownerID, 1024, entity.UploadSessionStatusCompleted, time.Now().Add(-time.Hour))
	locked.ID = candidate.ID

	sessionRepo.On("FindExpired", ctx, mock.Anything, 10).Return([]*entity.UploadSession{candidate}, nil)
	sessionRepo.On("FindByIDForUpdate", ctx, candidate.ID).Return(locked, nil)

	output, err := command.NewSweepExpiredCommand(sessionRepo, storage, txManager, 10).Execute(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, output.Swept)
	storage.AssertNotCalled(t, "AbortMultipartUpload", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepExpiredCommand_Execute_ProcessesMultipleBatches(t *testing.T) {
	ctx := context.Background()
	sessionRepo := mocks.NewMockUploadSessionRepository(t)
	storage := mocks.NewMockMultipartStorage(t)
	txManager := mocks.NewMockTransactionManager(t)

	ownerID := uuid.New()
	first := newTestSession(ownerID, 1024, entity.UploadSessionStatusActive, time.Now().Add(-time.Hour))
	second := newTestSession(ownerID, 1024, entity.UploadSessionStatusActive, time.Now().Add(-time.Hour))

	sessionRepo.On("FindExpired", ctx, mock.Anything, 1).Return([]*entity.UploadSession{first}, nil).Once()
	sessionRepo.On("FindExpired", ctx, mock.Anything, 1).Return([]*entity.UploadSession{second}, nil).Once()
	sessionRepo.On("FindExpired", ctx, mock.Anything, 1).Return([]*entity.UploadSession{}, nil).Once()
	sessionRepo.On("FindByIDForUpdate", ctx, first.ID).Return(first, nil)
	sessionRepo.On("FindByIDForUpdate", ctx, second.ID).Return(second, nil)
	sessionRepo.On("Update", ctx, mock.Anything).Return(nil)
	storage.On("AbortMultipartUpload", ctx, mock.Anything, mock.Anything).Return(nil)

	output, err := command.NewSweepExpiredCommand(sessionRepo, storage, txManager, 1).Execute(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, output.Swept)
}
