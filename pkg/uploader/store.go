package uploader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
)

// Status はクライアント側のアップロード状態です
type Status string

const (
	StatusUploading Status = "uploading"
	StatusPaused    Status = "paused"
	StatusError     Status = "error"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// resumable は再開対象の状態かどうかを返します
func (s Status) resumable() bool {
	return s == StatusUploading || s == StatusPaused || s == StatusError
}

// Record はローカルに保存する進捗です。サーバーの状態が常に優先されます。
type Record struct {
	FileID        uuid.UUID `json:"fileId"`
	TransferID    uuid.UUID `json:"transferId"`
	SessionID     uuid.UUID `json:"sessionId"`
	FileName      string    `json:"fileName"`
	FileSize      int64     `json:"fileSize"`
	TotalParts    int       `json:"totalParts"`
	UploadedParts int       `json:"uploadedParts"`
	Status        Status    `json:"status"`
	LastError     string    `json:"lastError,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ProgressStore は進捗レコードをファイルIDごとのJSONとして保存します
type ProgressStore struct {
	fs billy.Filesystem
	mu sync.Mutex
}

// NewProgressStore は新しいProgressStoreを作成します。osfs.New(dir) やmemfs.New() を渡します。
func NewProgressStore(fs billy.Filesystem) *ProgressStore {
	return &ProgressStore{fs: fs}
}

// Load はレコードを読み込みます。存在しない場合は (nil, nil) を返します。
func (s *ProgressStore) Load(fileID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := util.ReadFile(s.fs, recordPath(fileID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read progress record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode progress record: %w", err)
	}
	return &rec, nil
}

// Save はレコードを保存します
func (s *ProgressStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress record: %w", err)
	}
	if err := util.WriteFile(s.fs, recordPath(rec.FileID), raw, 0o600); err != nil {
		return fmt.Errorf("failed to write progress record: %w", err)
	}
	return nil
}

// Delete はレコードを削除します。存在しない場合も成功します。
func (s *ProgressStore) Delete(fileID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(recordPath(fileID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete progress record: %w", err)
	}
	return nil
}

func recordPath(fileID uuid.UUID) string {
	return fileID.String() + ".json"
}
