package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/database"
)

// UploadPartRepository はアップロードパーツリポジトリの実装です
type UploadPartRepository struct {
	*database.BaseRepository
}

// NewUploadPartRepository は新しいUploadPartRepositoryを作成します
func NewUploadPartRepository(txManager *database.TxManager) *UploadPartRepository {
	return &UploadPartRepository{
		BaseRepository: database.NewBaseRepository(txManager),
	}
}

// Upsert はパーツを記録します。同じパート番号の再報告は後勝ちで上書きされます。
func (r *UploadPartRepository) Upsert(ctx context.Context, part *entity.UploadPart) error {
	_, err := r.Querier(ctx).Exec(ctx, `
		INSERT INTO upload_parts (session_id, part_number, etag, size, uploaded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, part_number)
		DO UPDATE SET etag = EXCLUDED.etag, size = EXCLUDED.size, uploaded_at = EXCLUDED.uploaded_at`,
		part.SessionID, part.PartNumber, part.ETag, part.Size, part.UploadedAt,
	)

	return r.HandleError(err)
}

// FindBySessionID はセッションIDでパーツをパート番号順に検索します
func (r *UploadPartRepository) FindBySessionID(ctx context.Context, sessionID uuid.UUID) ([]*entity.UploadPart, error) {
	rows, err := r.Querier(ctx).Query(ctx, `
		SELECT session_id, part_number, etag, size, uploaded_at
		FROM upload_parts
		WHERE session_id = $1
		ORDER BY part_number`,
		sessionID,
	)
	if err != nil {
		return nil, r.HandleError(err)
	}
	defer rows.Close()

	parts := []*entity.UploadPart{}
	for rows.Next() {
		var (
			sid        uuid.UUID
			partNumber int32
			etag       string
			size       int64
			uploadedAt time.Time
		)
		if err := rows.Scan(&sid, &partNumber, &etag, &size, &uploadedAt); err != nil {
			return nil, r.HandleError(err)
		}
		parts = append(parts, entity.ReconstructUploadPart(sid, int(partNumber), size, etag, uploadedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, r.HandleError(err)
	}

	return parts, nil
}

// インターフェースの実装を保証
var _ repository.UploadPartRepository = (*UploadPartRepository)(nil)
