package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/valueobject"
)

// UploadSessionStatus はアップロードセッションのステータス
type UploadSessionStatus string

const (
	UploadSessionStatusActive    UploadSessionStatus = "active"
	UploadSessionStatusCompleted UploadSessionStatus = "completed"
	UploadSessionStatusAborted   UploadSessionStatus = "aborted"
	UploadSessionStatusFailed    UploadSessionStatus = "failed"
)

// アップロード関連定数
const (
	DefaultUploadSessionTTL = 24 * time.Hour
	DefaultChunkSize        = 2 * 1024 * 1024         // 2MiB
	DefaultMaxFileSize      = 10 * 1024 * 1024 * 1024 // 10GiB
	MaxMultipartParts       = 10000
)

// アップロードセッション関連エラー
var (
	ErrUploadSessionExpired        = errors.New("upload session expired")
	ErrUploadSessionCompleted      = errors.New("upload session already completed")
	ErrUploadSessionNotActive      = errors.New("upload session is not active")
	ErrUploadSessionInvalidPart    = errors.New("part number out of range")
	ErrUploadSessionInvalidSize    = errors.New("invalid file size")
	ErrUploadSessionTooManyParts   = errors.New("file requires too many parts")
	ErrUploadSessionInvalidChunk   = errors.New("invalid chunk size")
	ErrUploadSessionInvalidPartLen = errors.New("invalid part size")
)

// UploadSession は1ファイル分のマルチパートアップロードの状態を表すエンティティ
type UploadSession struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	TransferID uuid.UUID
	FileID     uuid.UUID
	FileName   valueobject.FileName
	FileSize   int64
	MimeType   valueobject.MimeType
	StorageKey valueobject.StorageKey
	UploadID   string // ストレージアダプタが発行したマルチパートアップロードID
	ChunkSize  int64
	TotalParts int
	Status     UploadSessionStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time
}

// NewUploadSession は新しいアクティブなアップロードセッションを作成します。
// TotalPartsはここで確定し、以後変わりません。
func NewUploadSession(
	ownerID uuid.UUID,
	transferID uuid.UUID,
	fileID uuid.UUID,
	fileName valueobject.FileName,
	mimeType valueobject.MimeType,
	fileSize int64,
	chunkSize int64,
	uploadID string,
	ttl time.Duration,
) (*UploadSession, error) {
	if fileSize <= 0 {
		return nil, ErrUploadSessionInvalidSize
	}
	if chunkSize <= 0 {
		return nil, ErrUploadSessionInvalidChunk
	}

	totalParts := CalculatePartCount(fileSize, chunkSize)
	if totalParts > MaxMultipartParts {
		return nil, ErrUploadSessionTooManyParts
	}

	if ttl <= 0 {
		ttl = DefaultUploadSessionTTL
	}

	now := time.Now()
	return &UploadSession{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		TransferID: transferID,
		FileID:     fileID,
		FileName:   fileName,
		FileSize:   fileSize,
		MimeType:   mimeType,
		StorageKey: valueobject.NewStorageKey(transferID, fileID, fileName),
		UploadID:   uploadID,
		ChunkSize:  chunkSize,
		TotalParts: totalParts,
		Status:     UploadSessionStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// ReconstructUploadSession はDBからアップロードセッションを復元します
func ReconstructUploadSession(
	id uuid.UUID,
	ownerID uuid.UUID,
	transferID uuid.UUID,
	fileID uuid.UUID,
	fileName valueobject.FileName,
	fileSize int64,
	mimeType valueobject.MimeType,
	storageKey valueobject.StorageKey,
	uploadID string,
	chunkSize int64,
	totalParts int,
	status UploadSessionStatus,
	createdAt time.Time,
	updatedAt time.Time,
	expiresAt time.Time,
) *UploadSession {
	return &UploadSession{
		ID:         id,
		OwnerID:    ownerID,
		TransferID: transferID,
		FileID:     fileID,
		FileName:   fileName,
		FileSize:   fileSize,
		MimeType:   mimeType,
		StorageKey: storageKey,
		UploadID:   uploadID,
		ChunkSize:  chunkSize,
		TotalParts: totalParts,
		Status:     status,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		ExpiresAt:  expiresAt,
	}
}

// CheckAcceptsParts はパーツ報告や完了を受け付けられる状態かを検証します。
// ステータスの判定が期限切れの判定より優先されます。
func (us *UploadSession) CheckAcceptsParts() error {
	switch us.Status {
	case UploadSessionStatusActive:
	case UploadSessionStatusCompleted:
		return ErrUploadSessionCompleted
	default:
		return ErrUploadSessionNotActive
	}
	if us.IsExpired() {
		return ErrUploadSessionExpired
	}
	return nil
}

// ValidatePart はパート番号とサイズがこのセッションに適合するかを検証します
func (us *UploadSession) ValidatePart(partNumber int, size int64) error {
	if partNumber < 1 || partNumber > us.TotalParts {
		return ErrUploadSessionInvalidPart
	}
	if size <= 0 || size > us.ChunkSize {
		return ErrUploadSessionInvalidPartLen
	}
	return nil
}

// Complete はアップロードを完了状態にします
func (us *UploadSession) Complete() error {
	if err := us.CheckAcceptsParts(); err != nil {
		return err
	}

	us.Status = UploadSessionStatusCompleted
	us.UpdatedAt = time.Now()
	return nil
}

// Abort はアップロードを中断状態にします。中断済みの場合は何もしません。
func (us *UploadSession) Abort() error {
	switch us.Status {
	case UploadSessionStatusAborted:
		return nil
	case UploadSessionStatusCompleted:
		return ErrUploadSessionCompleted
	}

	us.Status = UploadSessionStatusAborted
	us.UpdatedAt = time.Now()
	return nil
}

// MarkFailed はストレージ側で復旧できない状態になったセッションを失敗にします
func (us *UploadSession) MarkFailed() {
	if us.Status != UploadSessionStatusActive {
		return
	}
	us.Status = UploadSessionStatusFailed
	us.UpdatedAt = time.Now()
}

// Touch は更新日時を現在時刻にします
func (us *UploadSession) Touch() {
	us.UpdatedAt = time.Now()
}

// IsExpired はセッションが期限切れかどうかを判定します
func (us *UploadSession) IsExpired() bool {
	return time.Now().After(us.ExpiresAt)
}

// IsActive はアクティブ状態かどうかを判定します
func (us *UploadSession) IsActive() bool {
	return us.Status == UploadSessionStatusActive
}

// IsCompleted は完了済みかどうかを判定します
func (us *UploadSession) IsCompleted() bool {
	return us.Status == UploadSessionStatusCompleted
}

// IsAborted は中断済みかどうかを判定します
func (us *UploadSession) IsAborted() bool {
	return us.Status == UploadSessionStatusAborted
}

// IsTerminal は終端ステータスかどうかを判定します
func (us *UploadSession) IsTerminal() bool {
	return us.Status != UploadSessionStatusActive
}

// IsOwnedBy は指定ユーザーが所有者かどうかを判定します
func (us *UploadSession) IsOwnedBy(ownerID uuid.UUID) bool {
	return us.OwnerID == ownerID
}

// PartRange は指定パートのバイト範囲（オフセットと長さ）を返します
func (us *UploadSession) PartRange(partNumber int) (offset, length int64) {
	offset = int64(partNumber-1) * us.ChunkSize
	length = us.ChunkSize
	if offset+length > us.FileSize {
		length = us.FileSize - offset
	}
	return offset, length
}

// CalculatePartCount はファイルサイズとチャンクサイズからパート数を計算します
func CalculatePartCount(fileSize, chunkSize int64) int {
	if fileSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((fileSize + chunkSize - 1) / chunkSize)
}
