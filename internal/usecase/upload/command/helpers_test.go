package command_test

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/valueobject"
)

const testChunkSize = 5 * 1024 * 1024

// newTestSession は指定ステータス・有効期限のセッションを作成します
func newTestSession(ownerID uuid.UUID, fileSize int64, status entity.UploadSessionStatus, expiresAt time.Time) *entity.UploadSession {
	transferID := uuid.New()
	fileID := uuid.New()
	fileName, _ := valueobject.NewFileName("report.pdf")
	mimeType, _ := valueobject.NewMimeType("application/pdf")
	return entity.ReconstructUploadSession(
		uuid.New(), ownerID, transferID, fileID,
		fileName, fileSize, mimeType,
		valueobject.NewStorageKey(transferID, fileID, fileName),
		"upload-id-1", testChunkSize, entity.CalculatePartCount(fileSize, testChunkSize),
		status, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour), expiresAt,
	)
}

func newActiveSession(ownerID uuid.UUID, fileSize int64) *entity.UploadSession {
	return newTestSession(ownerID, fileSize, entity.UploadSessionStatusActive, time.Now().Add(24*time.Hour))
}

func partsFor(session *entity.UploadSession, numbers ...int) []*entity.UploadPart {
	parts := make([]*entity.UploadPart, 0, len(numbers))
	for _, n := range numbers {
		_, size := session.PartRange(n)
		parts = append(parts, entity.ReconstructUploadPart(session.ID, n, size, fmt.Sprintf("etag-%d", n), time.Now()))
	}
	return parts
}
