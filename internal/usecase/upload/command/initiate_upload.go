package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
	"github.com/webcoletivo/coletivosend/internal/domain/valueobject"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
	"github.com/webcoletivo/coletivosend/pkg/logger"
)

// InitiateUploadInput はアップロード開始の入力を定義します
type InitiateUploadInput struct {
	OwnerID    uuid.UUID
	TransferID uuid.UUID
	FileID     uuid.UUID
	FileName   string
	FileSize   int64
	MimeType   string
}

// InitiateUploadOutput はアップロード開始の出力を定義します
type InitiateUploadOutput struct {
	SessionID  uuid.UUID
	UploadID   string
	StorageKey string
	ChunkSize  int64
	TotalParts int
	ExpiresAt  time.Time
}

// InitiateUploadCommand はアップロード開始コマンドです
type InitiateUploadCommand struct {
	uploadSessionRepo repository.UploadSessionRepository
	storage           service.MultipartStorage
	fileTypeValidator service.FileTypeValidator
	policy            upload.Policy
}

// NewInitiateUploadCommand は新しいInitiateUploadCommandを作成します
func NewInitiateUploadCommand(
	uploadSessionRepo repository.UploadSessionRepository,
	storage service.MultipartStorage,
	fileTypeValidator service.FileTypeValidator,
	policy upload.Policy,
) *InitiateUploadCommand {
	return &InitiateUploadCommand{
		uploadSessionRepo: uploadSessionRepo,
		storage:           storage,
		fileTypeValidator: fileTypeValidator,
		policy:            policy,
	}
}

// Execute はアップロード開始を実行します
func (c *InitiateUploadCommand) Execute(ctx context.Context, input InitiateUploadInput) (*InitiateUploadOutput, error) {
	// 1. ファイルサイズのバリデーション
	if input.FileSize <= 0 {
		return nil, apperror.NewValidationError("file size must be positive", []apperror.FieldError{
			{Field: "fileSize", Message: "must be greater than 0"},
		})
	}
	if c.policy.MaxFileSize > 0 && input.FileSize > c.policy.MaxFileSize {
		return nil, apperror.NewValidationError("file size exceeds limit", []apperror.FieldError{
			{Field: "fileSize", Message: fmt.Sprintf("must be at most %d bytes", c.policy.MaxFileSize)},
		})
	}

	// 2. ファイル名のバリデーション
	fileName, err := valueobject.NewFileName(input.FileName)
	if err != nil {
		return nil, apperror.NewValidationError(err.Error(), []apperror.FieldError{
			{Field: "fileName", Message: err.Error()},
		})
	}

	// 3. MIMEタイプのバリデーション（未指定の場合はoctet-stream）
	mimeType := valueobject.MimeTypeOctetStream
	if input.MimeType != "" {
		mimeType, err = valueobject.NewMimeType(input.MimeType)
		if err != nil {
			return nil, apperror.NewValidationError(err.Error(), []apperror.FieldError{
				{Field: "mimeType", Message: err.Error()},
			})
		}
	}

	// 4. ファイル種別の許可チェック
	if c.fileTypeValidator != nil {
		if err := c.fileTypeValidator.Validate(fileName.Value(), mimeType.Value()); err != nil {
			return nil, err
		}
	}

	// 5. パート数の事前計算（ストレージ呼び出し前に上限を確認）
	chunkSize := c.policy.EffectiveChunkSize(c.storage.MinPartSize())
	if entity.CalculatePartCount(input.FileSize, chunkSize) > entity.MaxMultipartParts {
		return nil, apperror.NewValidationError(entity.ErrUploadSessionTooManyParts.Error(), nil)
	}

	// 6. ストレージでマルチパートアップロードを開始
	storageKey := valueobject.NewStorageKey(input.TransferID, input.FileID, fileName)
	uploadID, err := c.storage.CreateMultipartUpload(ctx, storageKey.String(), mimeType.Value())
	if err != nil {
		return nil, apperror.NewStorageInitError(err)
	}

	// 7. セッションを作成して保存
	session, err := entity.NewUploadSession(
		input.OwnerID,
		input.TransferID,
		input.FileID,
		fileName,
		mimeType,
		input.FileSize,
		chunkSize,
		uploadID,
		c.policy.SessionTTL,
	)
	if err == nil {
		err = c.uploadSessionRepo.Create(ctx, session)
	}
	if err != nil {
		// 保存に失敗したマルチパートアップロードは残さない
		if abortErr := c.storage.AbortMultipartUpload(ctx, storageKey.String(), uploadID); abortErr != nil {
			logger.Warn(ctx, "failed to abort orphaned multipart upload",
				"error", abortErr, "storage_key", storageKey.String(), "upload_id", uploadID)
		}
		return nil, upload.SessionError(nil, err)
	}

	logger.Info(ctx, "upload session initialized",
		"session_id", session.ID, "backend", c.storage.Name(), "total_parts", session.TotalParts)

	return &InitiateUploadOutput{
		SessionID:  session.ID,
		UploadID:   session.UploadID,
		StorageKey: session.StorageKey.String(),
		ChunkSize:  session.ChunkSize,
		TotalParts: session.TotalParts,
		ExpiresAt:  session.ExpiresAt,
	}, nil
}
