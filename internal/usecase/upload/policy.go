package upload

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

// Policy はアップロードセッションの運用パラメータを定義します
type Policy struct {
	ChunkSize      int64
	MaxFileSize    int64
	SessionTTL     time.Duration
	PresignExpiry  time.Duration
	ProxyParts     bool // trueの場合、署名付きURLを発行せず常にサーバー経由でパーツを受け取る
	SweepBatchSize int
}

// DefaultPolicy はデフォルトのポリシーを返します
func DefaultPolicy() Policy {
	return Policy{
		ChunkSize:      entity.DefaultChunkSize,
		MaxFileSize:    entity.DefaultMaxFileSize,
		SessionTTL:     entity.DefaultUploadSessionTTL,
		PresignExpiry:  15 * time.Minute,
		SweepBatchSize: 100,
	}
}

// EffectiveChunkSize は設定値とストレージの最小パートサイズの大きい方を返します
func (p Policy) EffectiveChunkSize(minPartSize int64) int64 {
	chunk := p.ChunkSize
	if chunk <= 0 {
		chunk = entity.DefaultChunkSize
	}
	if chunk < minPartSize {
		return minPartSize
	}
	return chunk
}

// ProxyPartPath はサーバー経由でパーツをアップロードする際のパスを返します
func ProxyPartPath(sessionID uuid.UUID, partNumber int) string {
	return fmt.Sprintf("/api/v1/uploads/%s/parts/%d", sessionID, partNumber)
}

// SessionError はドメインエラーをアプリケーションエラーに変換します
func SessionError(session *entity.UploadSession, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, entity.ErrUploadSessionCompleted):
		if session != nil {
			return apperror.NewAlreadyCompletedError(session.StorageKey.String(), session.FileSize)
		}
		return apperror.NewSessionNotActiveError(string(entity.UploadSessionStatusCompleted))
	case errors.Is(err, entity.ErrUploadSessionNotActive):
		status := "inactive"
		if session != nil {
			status = string(session.Status)
		}
		return apperror.NewSessionNotActiveError(status)
	case errors.Is(err, entity.ErrUploadSessionExpired):
		return apperror.NewSessionExpiredError()
	case errors.Is(err, entity.ErrUploadSessionInvalidPart):
		msg := err.Error()
		if session != nil {
			msg = fmt.Sprintf("part number must be between 1 and %d", session.TotalParts)
		}
		return apperror.NewValidationError(msg, []apperror.FieldError{{Field: "partNumber", Message: msg}})
	case errors.Is(err, entity.ErrUploadSessionInvalidPartLen):
		return apperror.NewValidationError(err.Error(), []apperror.FieldError{{Field: "size", Message: err.Error()}})
	case errors.Is(err, entity.ErrUploadSessionInvalidSize),
		errors.Is(err, entity.ErrUploadSessionInvalidChunk),
		errors.Is(err, entity.ErrUploadSessionTooManyParts):
		return apperror.NewValidationError(err.Error(), nil)
	}
	return apperror.NewInternalError(err)
}

// AuthorizeOwner は呼び出し元がセッションの所有者であることを確認します
func AuthorizeOwner(session *entity.UploadSession, userID uuid.UUID) error {
	if !session.IsOwnedBy(userID) {
		return apperror.NewForbiddenError("not authorized to access this upload session")
	}
	return nil
}
