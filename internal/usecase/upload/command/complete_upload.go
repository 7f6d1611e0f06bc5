package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
	"github.com/webcoletivo/coletivosend/pkg/logger"
)

// CompleteUploadInput はアップロード完了の入力を定義します
type CompleteUploadInput struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

// CompleteUploadOutput はアップロード完了の出力を定義します
type CompleteUploadOutput struct {
	SessionID     uuid.UUID
	StorageKey    string
	FileSize      int64
	UploadedBytes int64
	TotalParts    int
	CompletedAt   time.Time
}

// CompleteUploadCommand はアップロード完了コマンドです
type CompleteUploadCommand struct {
	uploadSessionRepo repository.UploadSessionRepository
	uploadPartRepo    repository.UploadPartRepository
	storage           service.MultipartStorage
	txManager         repository.TransactionManager
}

// NewCompleteUploadCommand は新しいCompleteUploadCommandを作成します
func NewCompleteUploadCommand(
	uploadSessionRepo repository.UploadSessionRepository,
	uploadPartRepo repository.UploadPartRepository,
	storage service.MultipartStorage,
	txManager repository.TransactionManager,
) *CompleteUploadCommand {
	return &CompleteUploadCommand{
		uploadSessionRepo: uploadSessionRepo,
		uploadPartRepo:    uploadPartRepo,
		storage:           storage,
		txManager:         txManager,
	}
}

// Execute はアップロード完了を実行します
func (c *CompleteUploadCommand) Execute(ctx context.Context, input CompleteUploadInput) (*CompleteUploadOutput, error) {
	ctx = logger.ContextWithUploadSession(ctx, input.SessionID)
	var output *CompleteUploadOutput
	var finalizeErr error

	err := c.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		// 1. セッション行をロックして取得（同時完了を直列化）
		session, err := c.uploadSessionRepo.FindByIDForUpdate(ctx, input.SessionID)
		if err != nil {
			return err
		}

		// 2. 所有者チェック
		if err := upload.AuthorizeOwner(session, input.UserID); err != nil {
			return err
		}

		// 3. ステータス・有効期限チェック
		if err := session.CheckAcceptsParts(); err != nil {
			return upload.SessionError(session, err)
		}

		// 4. 全パーツが揃っているか確認
		parts, err := c.uploadPartRepo.FindBySessionID(ctx, session.ID)
		if err != nil {
			return err
		}
		set := entity.NewUploadPartSet(parts)
		if missing := set.Missing(session.TotalParts); len(missing) > 0 {
			return apperror.NewIncompleteUploadError(missing)
		}

		uploaded := set.TotalSize()
		if uploaded != session.FileSize {
			logger.Warn(ctx, "uploaded size differs from declared file size",
				"declared", session.FileSize, "uploaded", uploaded)
		}

		// 5. ストレージでオブジェクトを確定（パート番号順）
		if err := c.storage.CompleteMultipartUpload(ctx, session.StorageKey.String(), session.UploadID, set.CompletedParts()); err != nil {
			finalizeErr = apperror.NewStorageFinalizeError(err)
			if errors.Is(err, service.ErrUploadNotFound) {
				// ストレージ側がアップロードIDを失っているため再試行できない
				session.MarkFailed()
				return c.uploadSessionRepo.Update(ctx, session)
			}
			return nil
		}

		// 6. セッションを完了状態に更新
		if err := session.Complete(); err != nil {
			return upload.SessionError(session, err)
		}
		if err := c.uploadSessionRepo.Update(ctx, session); err != nil {
			return err
		}

		output = &CompleteUploadOutput{
			SessionID:     session.ID,
			StorageKey:    session.StorageKey.String(),
			FileSize:      session.FileSize,
			UploadedBytes: uploaded,
			TotalParts:    session.TotalParts,
			CompletedAt:   session.UpdatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if finalizeErr != nil {
		logger.Error(ctx, "multipart finalize failed", "error", finalizeErr)
		return nil, finalizeErr
	}

	logger.Info(ctx, "upload completed", "storage_key", output.StorageKey)
	return output, nil
}
