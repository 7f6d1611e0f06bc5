package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/repository"
)

// FindActiveSessionInput は (所有者, 転送, ファイル) によるセッション検索の入力を定義します
type FindActiveSessionInput struct {
	OwnerID    uuid.UUID
	TransferID uuid.UUID
	FileID     uuid.UUID
}

// FindActiveSessionOutput はセッション検索の出力を定義します
type FindActiveSessionOutput struct {
	Progress Progress
}

// FindActiveSessionQuery はセッションIDを失ったクライアントが再開先を見つけるためのクエリです
type FindActiveSessionQuery struct {
	uploadSessionRepo repository.UploadSessionRepository
	uploadPartRepo    repository.UploadPartRepository
}

// NewFindActiveSessionQuery は新しいFindActiveSessionQueryを作成します
func NewFindActiveSessionQuery(
	uploadSessionRepo repository.UploadSessionRepository,
	uploadPartRepo repository.UploadPartRepository,
) *FindActiveSessionQuery {
	return &FindActiveSessionQuery{
		uploadSessionRepo: uploadSessionRepo,
		uploadPartRepo:    uploadPartRepo,
	}
}

// Execute はアクティブなセッションを検索します。見つからない場合はSESSION_NOT_FOUNDを返します。
func (q *FindActiveSessionQuery) Execute(ctx context.Context, input FindActiveSessionInput) (*FindActiveSessionOutput, error) {
	// 所有者で絞り込むため、他人のセッションは見つからない
	session, err := q.uploadSessionRepo.FindActiveByIdentity(ctx, input.OwnerID, input.TransferID, input.FileID)
	if err != nil {
		return nil, err
	}

	progress, err := buildProgress(ctx, q.uploadPartRepo, session)
	if err != nil {
		return nil, err
	}
	return &FindActiveSessionOutput{Progress: *progress}, nil
}
