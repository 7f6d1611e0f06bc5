package query

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
)

// ListUploadedPartsInput はアップロード済みパーツ一覧取得の入力を定義します
type ListUploadedPartsInput struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

// UploadedPart はアップロード済みパーツの情報です
type UploadedPart struct {
	PartNumber int
	Size       int64
	ETag       string
	UploadedAt time.Time
}

// ListUploadedPartsOutput はアップロード済みパーツ一覧取得の出力を定義します
type ListUploadedPartsOutput struct {
	SessionID   uuid.UUID
	TotalParts  int
	PartNumbers []int // 昇順
	Parts       []UploadedPart
}

// ListUploadedPartsQuery はアップロード済みパーツ一覧取得クエリです
type ListUploadedPartsQuery struct {
	uploadSessionRepo repository.UploadSessionRepository
	uploadPartRepo    repository.UploadPartRepository
}

// NewListUploadedPartsQuery は新しいListUploadedPartsQueryを作成します
func NewListUploadedPartsQuery(
	uploadSessionRepo repository.UploadSessionRepository,
	uploadPartRepo repository.UploadPartRepository,
) *ListUploadedPartsQuery {
	return &ListUploadedPartsQuery{
		uploadSessionRepo: uploadSessionRepo,
		uploadPartRepo:    uploadPartRepo,
	}
}

// Execute はアップロード済みパーツ一覧取得を実行します
func (q *ListUploadedPartsQuery) Execute(ctx context.Context, input ListUploadedPartsInput) (*ListUploadedPartsOutput, error) {
	session, err := q.uploadSessionRepo.FindByID(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	if err := upload.AuthorizeOwner(session, input.UserID); err != nil {
		return nil, err
	}

	parts, err := q.uploadPartRepo.FindBySessionID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	set := entity.NewUploadPartSet(parts)

	details := make([]UploadedPart, 0, len(set))
	for _, p := range set {
		details = append(details, UploadedPart{
			PartNumber: p.PartNumber,
			Size:       p.Size,
			ETag:       p.ETag,
			UploadedAt: p.UploadedAt,
		})
	}

	return &ListUploadedPartsOutput{
		SessionID:   session.ID,
		TotalParts:  session.TotalParts,
		PartNumbers: set.Numbers(),
		Parts:       details,
	}, nil
}
