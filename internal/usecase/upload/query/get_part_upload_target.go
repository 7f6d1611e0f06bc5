package query

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

// GetPartUploadTargetInput はパーツ送信先取得の入力を定義します
type GetPartUploadTargetInput struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	PartNumber int
}

// GetPartUploadTargetOutput はパーツ送信先取得の出力を定義します
type GetPartUploadTargetOutput struct {
	PartNumber int
	Method     string
	URL        string // Proxyがtrueの場合はAPIの相対パス
	Proxy      bool
	Offset     int64
	Size       int64
	ExpiresAt  time.Time
}

// GetPartUploadTargetQuery はパーツの送信先（署名付きURLまたはサーバー経由のパス）を返すクエリです
type GetPartUploadTargetQuery struct {
	uploadSessionRepo repository.UploadSessionRepository
	storage           service.MultipartStorage
	policy            upload.Policy
}

// NewGetPartUploadTargetQuery は新しいGetPartUploadTargetQueryを作成します
func NewGetPartUploadTargetQuery(
	uploadSessionRepo repository.UploadSessionRepository,
	storage service.MultipartStorage,
	policy upload.Policy,
) *GetPartUploadTargetQuery {
	return &GetPartUploadTargetQuery{
		uploadSessionRepo: uploadSessionRepo,
		storage:           storage,
		policy:            policy,
	}
}

// Execute はパーツ送信先取得を実行します
func (q *GetPartUploadTargetQuery) Execute(ctx context.Context, input GetPartUploadTargetInput) (*GetPartUploadTargetOutput, error) {
	// 1. セッション取得
	session, err := q.uploadSessionRepo.FindByID(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	// 2. 所有者チェック
	if err := upload.AuthorizeOwner(session, input.UserID); err != nil {
		return nil, err
	}

	// 3. 状態・パート番号チェック
	if err := session.CheckAcceptsParts(); err != nil {
		if session.IsCompleted() {
			return nil, apperror.NewSessionNotActiveError(string(session.Status))
		}
		return nil, upload.SessionError(session, err)
	}
	offset, size := session.PartRange(input.PartNumber)
	if err := session.ValidatePart(input.PartNumber, size); err != nil {
		return nil, upload.SessionError(session, err)
	}

	output := &GetPartUploadTargetOutput{
		PartNumber: input.PartNumber,
		Method:     http.MethodPut,
		Offset:     offset,
		Size:       size,
	}

	// 4. 署名付きURLを発行（プロキシモードまたは非対応の場合はサーバー経由）
	if !q.policy.ProxyParts {
		presigned, err := q.storage.PresignPartUpload(ctx, session.StorageKey.String(), session.UploadID, input.PartNumber, q.presignExpiry(session))
		switch {
		case err == nil:
			output.URL = presigned.URL
			if presigned.Method != "" {
				output.Method = presigned.Method
			}
			output.ExpiresAt = presigned.ExpiresAt
			return output, nil
		case errors.Is(err, service.ErrPresignUnsupported):
		default:
			return nil, apperror.NewInternalError(err)
		}
	}

	output.URL = upload.ProxyPartPath(session.ID, input.PartNumber)
	output.Proxy = true
	output.ExpiresAt = session.ExpiresAt
	return output, nil
}

// presignExpiry は署名付きURLの有効期間をセッションの残り時間以内に収めます
func (q *GetPartUploadTargetQuery) presignExpiry(session *entity.UploadSession) time.Duration {
	expiry := q.policy.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	if remaining := time.Until(session.ExpiresAt); remaining > 0 && remaining < expiry {
		expiry = remaining
	}
	return expiry
}
