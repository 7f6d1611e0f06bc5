package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload/command"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
	"github.com/webcoletivo/coletivosend/tests/testutil/mocks"
)

type initiateUploadTestDeps struct {
	uploadSessionRepo *mocks.MockUploadSessionRepository
	storage           *mocks.MockMultipartStorage
	fileTypeValidator *mocks.MockFileTypeValidator
	policy            upload.Policy
}

func newInitiateUploadTestDeps(t *testing.T) *initiateUploadTestDeps {
	t.Helper()
	return &initiateUploadTestDeps{
		uploadSessionRepo: mocks.NewMockUploadSessionRepository(t),
		storage:           mocks.NewMockMultipartStorage(t),
		fileTypeValidator: mocks.NewMockFileTypeValidator(t),
		policy:            upload.DefaultPolicy(),
	}
}

func (d *initiateUploadTestDeps) newCommand() *command.InitiateUploadCommand {
	return command.NewInitiateUploadCommand(d.uploadSessionRepo, d.storage, d.fileTypeValidator, d.policy)
}

func newInitiateInput() command.InitiateUploadInput {
	return command.InitiateUploadInput{
		OwnerID:    uuid.New(),
		TransferID: uuid.New(),
		FileID:     uuid.New(),
		FileName:   "holiday video.mp4",
		FileSize:   5 * 1024 * 1024,
		MimeType:   "video/mp4",
	}
}

func TestInitiateUploadCommand_Execute_CreatesSession(t *testing.T) {
	ctx := context.Background()
	deps := newInitiateUploadTestDeps(t)
	input := newInitiateInput()

	expectedKey := "transfers/" + input.TransferID.String() + "/" + input.FileID.String() + "/holidayvideo.mp4"

	deps.fileTypeValidator.On("Validate", "holiday video.mp4", "video/mp4").Return(nil)
	deps.storage.On("CreateMultipartUpload", ctx, expectedKey, "video/mp4").Return("upload-123", nil)
	deps.uploadSessionRepo.On("Create", ctx, mock.AnythingOfType("*entity.UploadSession")).Return(nil)

	output, err := deps.newCommand().Execute(ctx, input)

	require.NoError(t, err)
	require.NotNil(t, output)
	assert.Equal(t, "upload-123", output.UploadID)
	assert.Equal(t, expectedKey, output.StorageKey)
	assert.Equal(t, int64(entity.DefaultChunkSize), output.ChunkSize)
	assert.Equal(t, 3, output.TotalParts)
	assert.NotEqual(t, uuid.Nil, output.SessionID)
}

func TestInitiateUploadCommand_Execute_ChunkSizeRaisedToStorageMinimum(t *testing.T) {
	ctx := context.Background()
	deps := newInitiateUploadTestDeps(t)
	deps.policy.ChunkSize = 0
	input := newInitiateInput()
	input.FileSize = 1

	deps.fileTypeValidator.On("Validate", mock.Anything, mock.Anything).Return(nil)
	deps.storage.On("CreateMultipartUpload", ctx, mock.Anything, mock.Anything).Return("upload-1", nil)
	deps.uploadSessionRepo.On("Create", ctx, mock.Anything).Return(nil)

	output, err := deps.newCommand().Execute(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, int64(entity.DefaultChunkSize), output.ChunkSize)
	assert.Equal(t, 1, output.TotalParts)
}

func TestInitiateUploadCommand_Execute_FileTooLarge_ReturnsValidationError(t *testing.T) {
	ctx := context.Background()
	deps := newInitiateUploadTestDeps(t)
	input := newInitiateInput()
	input.FileSize = 11 * 1000 * 1000 * 1000

	output, err := deps.newCommand().Execute(ctx, input)

	assert.Nil(t, output)
	assert.True(t, apperror.HasErrorCode(err, apperror.CodeValidationError))
	deps.storage.AssertNotCalled(t, "CreateMultipartUpload", mock.Anything, mock.Anything, mock.Anything)
	deps.uploadSessionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInitiateUploadCommand_Execute_ZeroSize_ReturnsValidationError(t *testing.T) {
	ctx := context.Background()
	deps := newInitiateUploadTestDeps(t)
	input := newInitiateInput()
	input.FileSize = 0

	_, err := deps.newCommand().Execute(ctx, input)

	assert.True(t, apperror.HasErrorCode(err, apperror.CodeValidationError))
}

func TestInitiateUploadCommand_Execute_InvalidFileName_ReturnsValidationError(t *testing.T) {
	ctx := context.Background()
	deps := newInitiateUploadTestDeps(t)
	input := newInitiateInput()
	input.FileName = ".."

	_, err := deps.newCommand().Execute(ctx, input)

	assert.True(t, apperror.HasErrorCode(err, apperror.CodeValidationError))
}

func TestInitiateUploadCommand_Execute_TraversalNameIsSanitized(t *testing.T) {
	ctx := context.Background()
	deps := newInitiateUploadTestDeps(t)
	input := newInitiateInput()
	input.FileName = "../../etc/passwd"

	expectedKey := "transfers/" + input.TransferID.String() + "/" + input.FileID.String() + "/etcpasswd"

	deps.fileTypeValidator.On("Validate", "../../etc/passwd", "video/mp4").Return(nil)
	deps.storage.On("CreateMultipartUpload", ctx, expectedKey, "video/mp4").Return("upload-123", nil)
	deps.uploadSessionRepo.On("Create", ctx, mock.MatchedBy(func(s *entity.UploadSession) bool {
		return s.FileName.Value() == "../../etc/passwd"
	})).Return(nil)

	output, err := deps.newCommand().Execute(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, expectedKey, output.StorageKey)
}

func TestInitiateUploadCommand_Execute_RejectedFileType(t *testing.T) {
	ctx := context.Background()
	deps := newInitiateUploadTestDeps(t)
	input := newInitiateInput()
	input.FileName = "setup.exe"

	deps.fileTypeValidator.On("Validate", "setup.exe", "video/mp4").
		Return(apperror.NewUnsupportedFileTypeError("file extension .exe is not allowed"))

	_, err := deps.newCommand().Execute(ctx, input)

	assert.True(t, apperror.HasErrorCode(err, apperror.CodeUnsupportedFileType))
}

func TestInitiateUploadCommand_Execute_StorageFailure_ReturnsStorageInitError(t *testing.T) {
	ctx := context.Background()
	deps := newInitiateUploadTestDeps(t)
	input := newInitiateInput()

	deps.fileTypeValidator.On("Validate", mock.Anything, mock.Anything).Return(nil)
	deps.storage.On("CreateMultipartUpload", ctx, mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	_, err := deps.newCommand().Execute(ctx, input)

	assert.True(t, apperror.HasErrorCode(err, apperror.CodeStorageInitError))
	deps.uploadSessionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInitiateUploadCommand_Execute_PersistFailure_AbortsMultipartUpload(t *testing.T) {
	ctx := context.Background()
	deps := newInitiateUploadTestDeps(t)
	input := newInitiateInput()

	deps.fileTypeValidator.On("Validate", mock.Anything, mock.Anything).Return(nil)
	deps.storage.On("CreateMultipartUpload", ctx, mock.Anything, mock.Anything).Return("upload-9", nil)
	deps.uploadSessionRepo.On("Create", ctx, mock.Anything).Return(errors.New("db down"))
	deps.storage.On("AbortMultipartUpload", ctx, mock.Anything, "upload-9").Return(nil)

	output, err := deps.newCommand().Execute(ctx, input)

	assert.Nil(t, output)
	assert.True(t, apperror.HasErrorCode(err, apperror.CodeInternalError))
	deps.storage.AssertCalled(t, "AbortMultipartUpload", ctx, mock.Anything, "upload-9")
}
