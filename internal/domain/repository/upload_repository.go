package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
)

// UploadSessionRepository はアップロードセッションリポジトリのインターフェース
type UploadSessionRepository interface {
	// 基本CRUD
	Create(ctx context.Context, session *entity.UploadSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.UploadSession, error)
	Update(ctx context.Context, session *entity.UploadSession) error

	// FindByIDForUpdate はセッション行をロックして取得します。
	// トランザクション内で呼び出す必要があります。
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.UploadSession, error)

	// FindActiveByIdentity は (所有者, 転送, ファイル) に対する最新のアクティブなセッションを返します
	FindActiveByIdentity(ctx context.Context, ownerID, transferID, fileID uuid.UUID) (*entity.UploadSession, error)

	// 期限切れ検索（クリーンアップ用）
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.UploadSession, error)
}

// UploadPartRepository はアップロードパーツリポジトリのインターフェース
type UploadPartRepository interface {
	// Upsert は (session_id, part_number) をキーにパーツを記録します。既存の報告は上書きされます。
	Upsert(ctx context.Context, part *entity.UploadPart) error
	FindBySessionID(ctx context.Context, sessionID uuid.UUID) ([]*entity.UploadPart, error)
}
