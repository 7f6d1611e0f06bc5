// Package memstore はプロセス内メモリに保持するセッションストアです。
// 開発環境とテスト用で、再起動をまたいだ永続性はありません。
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

type txKey struct{}

// Store はセッションとパーツを保持します
type Store struct {
	// txMu はトランザクション全体を直列化する
	txMu sync.Mutex

	mu       sync.RWMutex
	sessions map[uuid.UUID]*entity.UploadSession
	parts    map[uuid.UUID]map[int]*entity.UploadPart
}

// New は空のStoreを作成します
func New() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*entity.UploadSession),
		parts:    make(map[uuid.UUID]map[int]*entity.UploadPart),
	}
}

// WithTransaction はトランザクションを直列に実行します。ネストした呼び出しは外側を再利用します。
// ロールバックは提供しません。
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	return fn(context.WithValue(ctx, txKey{}, struct{}{}))
}

// Sessions はセッションリポジトリを返します
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{store: s}
}

// Parts はパーツリポジトリを返します
func (s *Store) Parts() *PartRepository {
	return &PartRepository{store: s}
}

// SessionRepository はUploadSessionRepositoryのメモリ実装です
type SessionRepository struct {
	store *Store
}

// Create はセッションを保存します
func (r *SessionRepository) Create(ctx context.Context, session *entity.UploadSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.sessions[session.ID]; ok {
		return apperror.NewConflictError("upload session already exists")
	}
	r.store.sessions[session.ID] = cloneSession(session)
	return nil
}

// FindByID はセッションを検索します
func (r *SessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.UploadSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	session, ok := r.store.sessions[id]
	if !ok {
		return nil, apperror.NewSessionNotFoundError()
	}
	return cloneSession(session), nil
}

// FindByIDForUpdate はトランザクション内でセッションを取得します。
// 排他はWithTransactionの直列化で担保されます。
func (r *SessionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.UploadSession, error) {
	return r.FindByID(ctx, id)
}

// FindActiveByIdentity は最新のアクティブセッションを検索します
func (r *SessionRepository) FindActiveByIdentity(ctx context.Context, ownerID, transferID, fileID uuid.UUID) (*entity.UploadSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var latest *entity.UploadSession
	for _, s := range r.store.sessions {
		if s.OwnerID != ownerID || s.TransferID != transferID || s.FileID != fileID || !s.IsActive() {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, apperror.NewSessionNotFoundError()
	}
	return cloneSession(latest), nil
}

// Update はステータスと更新日時を反映します
func (r *SessionRepository) Update(ctx context.Context, session *entity.UploadSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.sessions[session.ID]
	if !ok {
		return apperror.NewSessionNotFoundError()
	}
	stored.Status = session.Status
	stored.UpdatedAt = session.UpdatedAt
	return nil
}

// FindExpired は期限切れのアクティブ／失敗セッションを返します
func (r *SessionRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.UploadSession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	expired := []*entity.UploadSession{}
	for _, s := range r.store.sessions {
		if s.Status != entity.UploadSessionStatusActive && s.Status != entity.UploadSessionStatusFailed {
			continue
		}
		if s.ExpiresAt.Before(now) {
			expired = append(expired, cloneSession(s))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })

	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// PartRepository はUploadPartRepositoryのメモリ実装です
type PartRepository struct {
	store *Store
}

// Upsert はパーツを記録します
func (r *PartRepository) Upsert(ctx context.Context, part *entity.UploadPart) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.sessions[part.SessionID]; !ok {
		return apperror.NewSessionNotFoundError()
	}

	parts, ok := r.store.parts[part.SessionID]
	if !ok {
		parts = make(map[int]*entity.UploadPart)
		r.store.parts[part.SessionID] = parts
	}
	copied := *part
	parts[part.PartNumber] = &copied
	return nil
}

// FindBySessionID はパーツをパート番号順に返します
func (r *PartRepository) FindBySessionID(ctx context.Context, sessionID uuid.UUID) ([]*entity.UploadPart, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	parts := make([]*entity.UploadPart, 0, len(r.store.parts[sessionID]))
	for _, p := range r.store.parts[sessionID] {
		copied := *p
		parts = append(parts, &copied)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func cloneSession(s *entity.UploadSession) *entity.UploadSession {
	copied := *s
	return &copied
}

var (
	_ repository.UploadSessionRepository = (*SessionRepository)(nil)
	_ repository.UploadPartRepository    = (*PartRepository)(nil)
	_ repository.TransactionManager      = (*Store)(nil)
)
