package uploader

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// API はアップロードサーバーの制御面です。HTTPClientが標準実装です。
type API interface {
	InitiateUpload(ctx context.Context, req InitiateRequest) (*Session, error)
	// LookupUpload は識別子に対応するアクティブなセッションを返します。無い場合はSESSION_NOT_FOUNDです。
	LookupUpload(ctx context.Context, transferID, fileID uuid.UUID) (*SessionProgress, error)
	GetProgress(ctx context.Context, sessionID uuid.UUID) (*SessionProgress, error)
	ListUploadedParts(ctx context.Context, sessionID uuid.UUID) ([]int, error)
	GetPartTarget(ctx context.Context, sessionID uuid.UUID, partNumber int) (*PartTarget, error)
	UploadPart(ctx context.Context, target *PartTarget, body io.Reader, size int64) (*PartUploadResult, error)
	ReportPart(ctx context.Context, sessionID uuid.UUID, partNumber int, etag string, size int64) error
	CompleteUpload(ctx context.Context, sessionID uuid.UUID) (*CompleteResult, error)
	AbortUpload(ctx context.Context, sessionID uuid.UUID) error
	// RefreshCredentials は認証失敗時に一度だけ呼ばれます
	RefreshCredentials(ctx context.Context) error
}

// InitiateRequest はセッション開始要求です
type InitiateRequest struct {
	TransferID uuid.UUID `json:"transferId"`
	FileID     uuid.UUID `json:"fileId"`
	FileName   string    `json:"fileName"`
	FileSize   int64     `json:"fileSize"`
	MimeType   string    `json:"mimeType,omitempty"`
}

// Session はサーバー上のアップロードセッションです
type Session struct {
	SessionID  uuid.UUID `json:"sessionId"`
	StorageKey string    `json:"storageKey"`
	ChunkSize  int64     `json:"chunkSize"`
	TotalParts int       `json:"totalParts"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// SessionProgress はサーバーが保持する進捗です
type SessionProgress struct {
	Session
	Status        string `json:"status"`
	FileSize      int64  `json:"fileSize"`
	UploadedParts int    `json:"uploadedParts"`
	UploadedBytes int64  `json:"uploadedBytes"`
}

// PartTarget はパーツのアップロード先です
type PartTarget struct {
	PartNumber int       `json:"partNumber"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	Proxy      bool      `json:"proxy"`
	Offset     int64     `json:"offset"`
	Size       int64     `json:"size"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// PartUploadResult はパーツ送信の結果です
type PartUploadResult struct {
	ETag string
	// Reported はサーバー経由の送信でパーツ報告まで済んでいる場合trueです
	Reported bool
}

// CompleteResult は完了したアップロードです
type CompleteResult struct {
	SessionID  uuid.UUID `json:"sessionId"`
	StorageKey string    `json:"storageKey"`
	FileSize   int64     `json:"fileSize"`
}
