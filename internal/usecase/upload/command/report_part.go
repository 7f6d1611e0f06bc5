package command

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

// ReportPartInput はパーツ報告の入力を定義します
type ReportPartInput struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	PartNumber int
	ETag       string
	Size       int64
}

// ReportPartOutput はパーツ報告の出力を定義します
type ReportPartOutput struct {
	SessionID     uuid.UUID
	PartNumber    int
	UploadedParts int
	TotalParts    int
	UploadedBytes int64
}

// ReportPartCommand はクライアントがストレージへ送信したパーツを記録するコマンドです
type ReportPartCommand struct {
	uploadSessionRepo repository.UploadSessionRepository
	uploadPartRepo    repository.UploadPartRepository
	txManager         repository.TransactionManager
}

// NewReportPartCommand は新しいReportPartCommandを作成します
func NewReportPartCommand(
	uploadSessionRepo repository.UploadSessionRepository,
	uploadPartRepo repository.UploadPartRepository,
	txManager repository.TransactionManager,
) *ReportPartCommand {
	return &ReportPartCommand{
		uploadSessionRepo: uploadSessionRepo,
		uploadPartRepo:    uploadPartRepo,
		txManager:         txManager,
	}
}

// Execute はパーツ報告を実行します
func (c *ReportPartCommand) Execute(ctx context.Context, input ReportPartInput) (*ReportPartOutput, error) {
	etag := strings.TrimSpace(input.ETag)
	if etag == "" {
		return nil, apperror.NewValidationError("etag is required", []apperror.FieldError{
			{Field: "etag", Message: "required"},
		})
	}

	var output *ReportPartOutput
	err := c.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		// 1. セッション行をロックして取得
		session, err := c.uploadSessionRepo.FindByIDForUpdate(ctx, input.SessionID)
		if err != nil {
			return err
		}

		// 2. 所有者チェック
		if err := upload.AuthorizeOwner(session, input.UserID); err != nil {
			return err
		}

		// 3. ステータス・有効期限・パート範囲の検証
		if err := session.CheckAcceptsParts(); err != nil {
			return notActiveError(session, err)
		}
		if err := session.ValidatePart(input.PartNumber, input.Size); err != nil {
			return upload.SessionError(session, err)
		}

		// 4. パーツを記録（同じパート番号の再報告は上書き）
		part := entity.NewUploadPart(session.ID, input.PartNumber, input.Size, etag)
		if err := c.uploadPartRepo.Upsert(ctx, part); err != nil {
			return err
		}

		// 5. セッションの更新日時を更新
		session.Touch()
		if err := c.uploadSessionRepo.Update(ctx, session); err != nil {
			return err
		}

		parts, err := c.uploadPartRepo.FindBySessionID(ctx, session.ID)
		if err != nil {
			return err
		}
		set := entity.NewUploadPartSet(parts)

		output = &ReportPartOutput{
			SessionID:     session.ID,
			PartNumber:    input.PartNumber,
			UploadedParts: len(set),
			TotalParts:    session.TotalParts,
			UploadedBytes: set.TotalSize(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

// notActiveError はパーツを受け付けられないセッションのエラーを返します。
// 完了済みセッションへのパーツ操作はSESSION_NOT_ACTIVEとして扱います。
func notActiveError(session *entity.UploadSession, err error) error {
	if session.IsCompleted() {
		return apperror.NewSessionNotActiveError(string(session.Status))
	}
	return upload.SessionError(session, err)
}
