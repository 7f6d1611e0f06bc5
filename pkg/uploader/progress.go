package uploader

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Progress は進捗通知のスナップショットです
type Progress struct {
	FileID        uuid.UUID
	SessionID     uuid.UUID
	Status        Status
	UploadedParts int
	TotalParts    int
	UploadedBytes int64
	TotalBytes    int64
	// BytesPerSecond は今回の実行開始からの平均スループットです
	BytesPerSecond float64
	// ETA は残り時間の見積もりです。スループット不明の場合0です。
	ETA time.Duration
	// Err は失敗時の最終イベントのみ設定されます
	Err error
}

// Percent は進捗率(0-100)を返します
func (p Progress) Percent() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.UploadedBytes) / float64(p.TotalBytes) * 100
}

// tracker はパーツ完了ごとに進捗を再計算します
type tracker struct {
	mu  sync.Mutex
	now func() time.Time

	fileID    uuid.UUID
	sessionID uuid.UUID
	start     time.Time

	totalParts    int
	totalBytes    int64
	uploadedParts int
	uploadedBytes int64
	// sentBytes は今回の実行で送信したバイト数です
	sentBytes int64
}

func newTracker(fileID, sessionID uuid.UUID, totalParts int, totalBytes int64, now func() time.Time) *tracker {
	return &tracker{
		now:        now,
		fileID:     fileID,
		sessionID:  sessionID,
		start:      now(),
		totalParts: totalParts,
		totalBytes: totalBytes,
	}
}

// resumeFrom はサーバー上で既に完了しているパーツを反映します
func (t *tracker) resumeFrom(parts int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploadedParts = parts
	t.uploadedBytes = bytes
}

func (t *tracker) partDone(size int64) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploadedParts++
	t.uploadedBytes += size
	t.sentBytes += size
	return t.snapshotLocked(StatusUploading)
}

func (t *tracker) snapshot(status Status) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(status)
}

func (t *tracker) snapshotLocked(status Status) Progress {
	p := Progress{
		FileID:        t.fileID,
		SessionID:     t.sessionID,
		Status:        status,
		UploadedParts: t.uploadedParts,
		TotalParts:    t.totalParts,
		UploadedBytes: t.uploadedBytes,
		TotalBytes:    t.totalBytes,
	}
	elapsed := t.now().Sub(t.start).Seconds()
	if elapsed > 0 && t.sentBytes > 0 {
		p.BytesPerSecond = float64(t.sentBytes) / elapsed
		remaining := t.totalBytes - t.uploadedBytes
		if remaining > 0 {
			p.ETA = time.Duration(float64(remaining) / p.BytesPerSecond * float64(time.Second))
		}
	}
	return p
}

// partSize はパーツ番号nのバイト数を返します
func partSize(n int, chunkSize, fileSize int64) int64 {
	offset := int64(n-1) * chunkSize
	if offset >= fileSize {
		return 0
	}
	return min(chunkSize, fileSize-offset)
}
