package command

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
	"github.com/webcoletivo/coletivosend/pkg/logger"
)

// AbortUploadInput はアップロード中断の入力を定義します
type AbortUploadInput struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

// AbortUploadOutput はアップロード中断の出力を定義します
type AbortUploadOutput struct {
	SessionID uuid.UUID
	Aborted   bool // この呼び出しでセッションが中断状態に遷移した場合true
}

// AbortUploadCommand はアップロード中断コマンドです
type AbortUploadCommand struct {
	uploadSessionRepo repository.UploadSessionRepository
	storage           service.MultipartStorage
	txManager         repository.TransactionManager
}

// NewAbortUploadCommand は新しいAbortUploadCommandを作成します
func NewAbortUploadCommand(
	uploadSessionRepo repository.UploadSessionRepository,
	storage service.MultipartStorage,
	txManager repository.TransactionManager,
) *AbortUploadCommand {
	return &AbortUploadCommand{
		uploadSessionRepo: uploadSessionRepo,
		storage:           storage,
		txManager:         txManager,
	}
}

// Execute はアップロード中断を実行します。存在しないセッションや中断済みセッションに対しては何もしません。
func (c *AbortUploadCommand) Execute(ctx context.Context, input AbortUploadInput) (*AbortUploadOutput, error) {
	var aborted *entity.UploadSession

	err := c.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		// 1. セッション行をロックして取得
		session, err := c.uploadSessionRepo.FindByIDForUpdate(ctx, input.SessionID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil
			}
			return err
		}

		// 2. 所有者チェック
		if err := upload.AuthorizeOwner(session, input.UserID); err != nil {
			return err
		}

		// 3. 中断状態へ遷移
		changed, err := abortSession(ctx, c.uploadSessionRepo, session)
		if err != nil {
			return err
		}
		if changed {
			aborted = session
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 4. ストレージ側のマルチパートアップロードを破棄（失敗してもセッションは中断済み）
	if aborted != nil {
		abortStorage(ctx, c.storage, aborted)
	}

	return &AbortUploadOutput{SessionID: input.SessionID, Aborted: aborted != nil}, nil
}

// abortSession はセッションを中断状態にして保存します。状態が変わった場合trueを返します。
func abortSession(ctx context.Context, repo repository.UploadSessionRepository, session *entity.UploadSession) (bool, error) {
	if session.IsAborted() {
		return false, nil
	}
	if session.IsCompleted() {
		return false, apperror.NewSessionNotActiveError(string(session.Status))
	}
	if err := session.Abort(); err != nil {
		return false, upload.SessionError(session, err)
	}
	if err := repo.Update(ctx, session); err != nil {
		return false, err
	}
	return true, nil
}

func abortStorage(ctx context.Context, storage service.MultipartStorage, session *entity.UploadSession) {
	err := storage.AbortMultipartUpload(ctx, session.StorageKey.String(), session.UploadID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrUploadNotFound):
		logger.Debug(ctx, "multipart upload already gone", "session_id", session.ID)
	default:
		logger.Warn(ctx, "failed to abort multipart upload",
			"session_id", session.ID, "upload_id", session.UploadID, "error", err)
	}
}
