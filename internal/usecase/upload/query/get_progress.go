package query

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
)

// GetProgressInput は進捗取得の入力を定義します
type GetProgressInput struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
}

// Progress はアップロードセッションの進捗を表します
type Progress struct {
	SessionID     uuid.UUID
	TransferID    uuid.UUID
	FileID        uuid.UUID
	Status        entity.UploadSessionStatus
	FileName      string
	FileSize      int64
	MimeType      string
	StorageKey    string
	ChunkSize     int64
	TotalParts    int
	UploadedParts int
	UploadedBytes int64
	ExpiresAt     time.Time
	UpdatedAt     time.Time
}

// GetProgressOutput は進捗取得の出力を定義します
type GetProgressOutput struct {
	Progress Progress
}

// GetProgressQuery は進捗取得クエリです
type GetProgressQuery struct {
	uploadSessionRepo repository.UploadSessionRepository
	uploadPartRepo    repository.UploadPartRepository
}

// NewGetProgressQuery は新しいGetProgressQueryを作成します
func NewGetProgressQuery(
	uploadSessionRepo repository.UploadSessionRepository,
	uploadPartRepo repository.UploadPartRepository,
) *GetProgressQuery {
	return &GetProgressQuery{
		uploadSessionRepo: uploadSessionRepo,
		uploadPartRepo:    uploadPartRepo,
	}
}

// Execute は進捗取得を実行します
func (q *GetProgressQuery) Execute(ctx context.Context, input GetProgressInput) (*GetProgressOutput, error) {
	session, err := q.uploadSessionRepo.FindByID(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	if err := upload.AuthorizeOwner(session, input.UserID); err != nil {
		return nil, err
	}

	progress, err := buildProgress(ctx, q.uploadPartRepo, session)
	if err != nil {
		return nil, err
	}
	return &GetProgressOutput{Progress: *progress}, nil
}

func buildProgress(ctx context.Context, partRepo repository.UploadPartRepository, session *entity.UploadSession) (*Progress, error) {
	parts, err := partRepo.FindBySessionID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	set := entity.NewUploadPartSet(parts)

	return &Progress{
		SessionID:     session.ID,
		TransferID:    session.TransferID,
		FileID:        session.FileID,
		Status:        session.Status,
		FileName:      session.FileName.String(),
		FileSize:      session.FileSize,
		MimeType:      session.MimeType.String(),
		StorageKey:    session.StorageKey.String(),
		ChunkSize:     session.ChunkSize,
		TotalParts:    session.TotalParts,
		UploadedParts: len(set),
		UploadedBytes: set.TotalSize(),
		ExpiresAt:     session.ExpiresAt,
		UpdatedAt:     session.UpdatedAt,
	}, nil
}
