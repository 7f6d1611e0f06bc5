package command

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

// UploadPartInput はサーバー経由のパーツアップロードの入力を定義します
type UploadPartInput struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	PartNumber int
	Body       io.Reader
	Size       int64 // Content-Length
}

// UploadPartOutput はサーバー経由のパーツアップロードの出力を定義します
type UploadPartOutput struct {
	ETag string
	*ReportPartOutput
}

// UploadPartCommand は署名付きURLを使えない場合にパーツを中継するコマンドです
type UploadPartCommand struct {
	uploadSessionRepo repository.UploadSessionRepository
	storage           service.MultipartStorage
	reportPart        *ReportPartCommand
}

// NewUploadPartCommand は新しいUploadPartCommandを作成します
func NewUploadPartCommand(
	uploadSessionRepo repository.UploadSessionRepository,
	storage service.MultipartStorage,
	reportPart *ReportPartCommand,
) *UploadPartCommand {
	return &UploadPartCommand{
		uploadSessionRepo: uploadSessionRepo,
		storage:           storage,
		reportPart:        reportPart,
	}
}

// Execute はパーツをストレージへ転送し、報告まで行います
func (c *UploadPartCommand) Execute(ctx context.Context, input UploadPartInput) (*UploadPartOutput, error) {
	// 1. セッション取得
	session, err := c.uploadSessionRepo.FindByID(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	// 2. 所有者チェック
	if err := upload.AuthorizeOwner(session, input.UserID); err != nil {
		return nil, err
	}

	// 3. 状態チェック
	if err := session.CheckAcceptsParts(); err != nil {
		return nil, notActiveError(session, err)
	}

	// 4. サイズチェック
	if input.Size > session.ChunkSize {
		return nil, apperror.NewPayloadTooLargeError(
			fmt.Sprintf("part body exceeds chunk size of %d bytes", session.ChunkSize))
	}
	if input.Size <= 0 {
		return nil, apperror.NewValidationError("content length is required", []apperror.FieldError{
			{Field: "Content-Length", Message: "required"},
		})
	}
	size := input.Size
	if err := session.ValidatePart(input.PartNumber, size); err != nil {
		return nil, upload.SessionError(session, err)
	}

	// 5. ストレージへ転送（チャンクサイズを超える分は読み込まない）
	body := io.LimitReader(input.Body, session.ChunkSize)
	etag, err := c.storage.UploadPart(ctx, session.StorageKey.String(), session.UploadID, input.PartNumber, body, size)
	if err != nil {
		if errors.Is(err, service.ErrUploadNotFound) {
			return nil, apperror.NewSessionNotActiveError("unknown to storage")
		}
		return nil, apperror.NewInternalError(err)
	}

	// 6. パーツを記録
	report, err := c.reportPart.Execute(ctx, ReportPartInput{
		SessionID:  session.ID,
		UserID:     input.UserID,
		PartNumber: input.PartNumber,
		ETag:       etag,
		Size:       size,
	})
	if err != nil {
		return nil, err
	}

	return &UploadPartOutput{ETag: etag, ReportPartOutput: report}, nil
}
