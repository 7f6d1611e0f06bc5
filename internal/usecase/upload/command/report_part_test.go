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
	"github.com/webcoletivo/coletivosend/pkg/apperror"
	"github.com/webcoletivo/coletivosend/tests/testutil/mocks"
)

type reportPartTestDeps struct {
	uploadSessionRepo *mocks.MockUploadSessionRepository
	uploadPartRepo    *mocks.MockUploadPartRepository
	txManager         *mocks.MockTransactionManager
}

func newReportPartTestDeps(t *testing.T) *reportPartTestDeps {
	t.Helper()
	return &reportPartTestDeps{
		uploadSessionRepo: mocks.NewMockUploadSessionRepository(t),
		uploadPartRepo:    mocks.NewMockUploadPartRepository(t),
		txManager:         mocks.NewMockTransactionManager(t),
	}
}

func (d *reportPartTestDeps) newCommand() *command.ReportPartCommand {
	return command.NewReportPartCommand(d.uploadSessionRepo, d.uploadPartRepo, d.txManager)
}

func TestReportPartCommand_Execute_RecordsPart(t *testing.T) {
	ctx := context.Background()
	deps := newReportPartTestDeps(t)

	ownerID := uuid.New()
	session := newActiveSession(ownerID, 12*1024*1024)
	_, size := session.PartRange(2)

	deps.uploadSessionRepo.On("FindByIDForUpdate", ctx, session.ID).Return(session, nil)
	deps.uploadPartRepo.On("Upsert", ctx, mock.MatchedBy(func(p *entity.UploadPart) bool {
		return p.SessionID == session.ID && p.PartNumber == 2 && p.ETag == "etag-2" && p.Size == size
	})).Return(nil)
	deps.uploadSessionRepo.On("Update", ctx, session).Return(nil)
	deps.uploadPartRepo.On("FindBySessionID", ctx, session.ID).Return(partsFor(session, 1, 2), nil)

	before := session.UpdatedAt
	output, err := deps.newCommand().Execute(ctx, command.ReportPartInput{
		SessionID:  session.ID,
		UserID:     ownerID,
		PartNumber: 2,
		ETag:       " etag-2 ",
		Size:       size,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, output.UploadedParts)
	assert.Equal(t, 3, output.TotalParts)
	assert.Equal(t, int64(2*testChunkSize), output.UploadedBytes)
	assert.True(t, session.UpdatedAt.After(before))
}

func TestReportPartCommand_Execute_NotOwner_ReturnsForbidden(t *testing.T) {
	ctx := context.Background()
	deps := newReportPartTestDeps(t)

	session := newActiveSession(uuid.New(), 1024)
	deps.uploadSessionRepo.On("FindByIDForUpdate", ctx, session.ID).Return(session, nil)

	_, err := deps.newCommand().Execute(ctx, command.ReportPartInput{
		SessionID: session.ID, UserID: uuid.New(), PartNumber: 1, ETag: "e", Size: 1024,
	})

	assert.True(t, apperror.IsForbidden(err))
}

func TestReportPartCommand_Execute_Rejections(t *testing.T) {
	ownerID := uuid.New()

	tests := []struct {
		name       string
		session    *entity.UploadSession
		partNumber int
		size       int64
		code       apperror.ErrorCode
	}{
		{
			name:       "part number zero",
			session:    newActiveSession(ownerID, 1024),
			partNumber: 0,
			size:       1024,
			code:       apperror.CodeValidationError,
		},
		{
			name:       "part number beyond total",
			session:    newActiveSession(ownerID, 1024),
			partNumber: 2,
			size:       1024,
			code:       apperror.CodeValidationError,
		},
		{
			name:       "part larger than chunk",
			session:    newActiveSession(ownerID, 1024),
			partNumber: 1,
			size:       testChunkSize + 1,
			code:       apperror.CodeValidationError,
		},
		{
			name:       "expired session",
			session:    newTestSession(ownerID, 1024, entity.UploadSessionStatusActive, time.Now().Add(-time.Minute)),
			partNumber: 1,
			size:       1024,
			code:       apperror.CodeSessionExpired,
		},
		{
			name:       "aborted session",
			session:    newTestSession(ownerID, 1024, entity.UploadSessionStatusAborted, time.Now().Add(time.Hour)),
			partNumber: 1,
			size:       1024,
			code:       apperror.CodeSessionNotActive,
		},
		{
			name:       "aborted and expired session reports status first",
			session:    newTestSession(ownerID, 1024, entity.UploadSessionStatusAborted, time.Now().Add(-time.Hour)),
			partNumber: 1,
			size:       1024,
			code:       apperror.CodeSessionNotActive,
		},
		{
			name:       "completed session",
			session:    newTestSession(ownerID, 1024, entity.UploadSessionStatusCompleted, time.Now().Add(time.Hour)),
			partNumber: 1,
			size:       1024,
			code:       apperror.CodeSessionNotActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			deps := newReportPartTestDeps(t)
			deps.uploadSessionRepo.On("FindByIDForUpdate", ctx, tt.session.ID).Return(tt.session, nil)

			output, err := deps.newCommand().Execute(ctx, command.ReportPartInput{
				SessionID:  tt.session.ID,
				UserID:     ownerID,
				PartNumber: tt.partNumber,
				ETag:       "etag",
				Size:       tt.size,
			})

			assert.Nil(t, output)
			assert.True(t, apperror.HasErrorCode(err, tt.code), "got %v", err)
			deps.uploadPartRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
		})
	}
}

func TestReportPartCommand_Execute_EmptyETag_ReturnsValidationError(t *testing.T) {
	ctx := context.Background()
	deps := newReportPartTestDeps(t)

	_, err := deps.newCommand().Execute(ctx, command.ReportPartInput{
		SessionID: uuid.New(), UserID: uuid.New(), PartNumber: 1, ETag: "  ", Size: 10,
	})

	assert.True(t, apperror.HasErrorCode(err, apperror.CodeValidationError))
}

func TestReportPartCommand_Execute_SessionNotFound(t *testing.T) {
	ctx := context.Background()
	deps := newReportPartTestDeps(t)
	sessionID := uuid.New()

	deps.uploadSessionRepo.On("FindByIDForUpdate", ctx, sessionID).Return(nil, apperror.NewSessionNotFoundError())

	_, err := deps.newCommand().Execute(ctx, command.ReportPartInput{
		SessionID: sessionID, UserID: uuid.New(), PartNumber: 1, ETag: "etag", Size: 10,
	})

	assert.True(t, apperror.HasErrorCode(err, apperror.CodeSessionNotFound))
}
