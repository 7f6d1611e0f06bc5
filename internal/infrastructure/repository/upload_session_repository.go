package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/domain/valueobject"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/database"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

const uploadSessionColumns = `id, owner_id, transfer_id, file_id, file_name, file_size, mime_type,
	storage_key, upload_id, chunk_size, total_parts, status, created_at, updated_at, expires_at`

// UploadSessionRepository はアップロードセッションリポジトリの実装です
type UploadSessionRepository struct {
	*database.BaseRepository
}

// NewUploadSessionRepository は新しいUploadSessionRepositoryを作成します
func NewUploadSessionRepository(txManager *database.TxManager) *UploadSessionRepository {
	return &UploadSessionRepository{
		BaseRepository: database.NewBaseRepository(txManager),
	}
}

// Create はアップロードセッションを作成します
func (r *UploadSessionRepository) Create(ctx context.Context, session *entity.UploadSession) error {
	_, err := r.Querier(ctx).Exec(ctx, `
		INSERT INTO upload_sessions (`+uploadSessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		session.ID,
		session.OwnerID,
		session.TransferID,
		session.FileID,
		session.FileName.Value(),
		session.FileSize,
		session.MimeType.Value(),
		session.StorageKey.Value(),
		session.UploadID,
		session.ChunkSize,
		session.TotalParts,
		string(session.Status),
		session.CreatedAt,
		session.UpdatedAt,
		session.ExpiresAt,
	)

	return r.HandleError(err)
}

// FindByID はIDでアップロードセッションを検索します
func (r *UploadSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.UploadSession, error) {
	row := r.Querier(ctx).QueryRow(ctx, `SELECT `+uploadSessionColumns+` FROM upload_sessions WHERE id = $1`, id)
	return r.scanOne(row)
}

// FindByIDForUpdate はセッション行を FOR UPDATE でロックして取得します
func (r *UploadSessionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.UploadSession, error) {
	if err := r.RequireTransaction(ctx); err != nil {
		return nil, err
	}

	row := r.Querier(ctx).QueryRow(ctx, `SELECT `+uploadSessionColumns+` FROM upload_sessions WHERE id = $1 FOR UPDATE`, id)
	return r.scanOne(row)
}

// FindActiveByIdentity は (所有者, 転送, ファイル) の最新アクティブセッションを検索します
func (r *UploadSessionRepository) FindActiveByIdentity(ctx context.Context, ownerID, transferID, fileID uuid.UUID) (*entity.UploadSession, error) {
	row := r.Querier(ctx).QueryRow(ctx, `
		SELECT `+uploadSessionColumns+`
		FROM upload_sessions
		WHERE owner_id = $1 AND transfer_id = $2 AND file_id = $3 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1`,
		ownerID, transferID, fileID,
	)
	return r.scanOne(row)
}

// Update はアップロードセッションの可変項目（ステータスと更新日時）を更新します
func (r *UploadSessionRepository) Update(ctx context.Context, session *entity.UploadSession) error {
	tag, err := r.Querier(ctx).Exec(ctx, `
		UPDATE upload_sessions
		SET status = $2, updated_at = $3
		WHERE id = $1`,
		session.ID, string(session.Status), session.UpdatedAt,
	)
	if err != nil {
		return r.HandleError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewSessionNotFoundError()
	}
	return nil
}

// FindExpired は期限切れのアクティブ／失敗セッションを古い順に検索します
func (r *UploadSessionRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.UploadSession, error) {
	rows, err := r.Querier(ctx).Query(ctx, `
		SELECT `+uploadSessionColumns+`
		FROM upload_sessions
		WHERE status IN ('active', 'failed') AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, r.HandleError(err)
	}
	defer rows.Close()

	sessions := []*entity.UploadSession{}
	for rows.Next() {
		session, err := scanUploadSession(rows)
		if err != nil {
			return nil, r.HandleError(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, r.HandleError(err)
	}

	return sessions, nil
}

func (r *UploadSessionRepository) scanOne(row pgx.Row) (*entity.UploadSession, error) {
	session, err := scanUploadSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewSessionNotFoundError()
		}
		return nil, r.HandleError(err)
	}
	return session, nil
}

// scanUploadSession は1行をエンティティに変換します
func scanUploadSession(row pgx.Row) (*entity.UploadSession, error) {
	var (
		id, ownerID, transferID, fileID uuid.UUID
		fileName, mimeType, storageKey  string
		uploadID, status                string
		fileSize, chunkSize             int64
		totalParts                      int32
		createdAt, updatedAt, expiresAt time.Time
	)

	if err := row.Scan(
		&id, &ownerID, &transferID, &fileID, &fileName, &fileSize, &mimeType,
		&storageKey, &uploadID, &chunkSize, &totalParts, &status, &createdAt, &updatedAt, &expiresAt,
	); err != nil {
		return nil, err
	}

	key, err := valueobject.NewStorageKeyFromString(storageKey)
	if err != nil {
		return nil, err
	}

	return entity.ReconstructUploadSession(
		id,
		ownerID,
		transferID,
		fileID,
		valueobject.ReconstructFileName(fileName),
		fileSize,
		valueobject.ReconstructMimeType(mimeType),
		key,
		uploadID,
		chunkSize,
		int(totalParts),
		entity.UploadSessionStatus(status),
		createdAt,
		updatedAt,
		expiresAt,
	), nil
}

// インターフェースの実装を保証
var _ repository.UploadSessionRepository = (*UploadSessionRepository)(nil)
