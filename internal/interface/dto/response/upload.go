package response

import (
	"time"

	"github.com/webcoletivo/coletivosend/internal/usecase/upload/command"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload/query"
)

// InitiateUploadResponse はアップロードセッション開始レスポンスです
type InitiateUploadResponse struct {
	SessionID  string    `json:"sessionId"`
	UploadID   string    `json:"uploadId"`
	StorageKey string    `json:"storageKey"`
	ChunkSize  int64     `json:"chunkSize"`
	TotalParts int       `json:"totalParts"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ToInitiateUploadResponse はInitiateUploadOutputをレスポンスに変換します
func ToInitiateUploadResponse(o *command.InitiateUploadOutput) InitiateUploadResponse {
	return InitiateUploadResponse{
		SessionID:  o.SessionID.String(),
		UploadID:   o.UploadID,
		StorageKey: o.StorageKey,
		ChunkSize:  o.ChunkSize,
		TotalParts: o.TotalParts,
		ExpiresAt:  o.ExpiresAt,
	}
}

// ProgressResponse はアップロード進捗レスポンスです
type ProgressResponse struct {
	SessionID     string    `json:"sessionId"`
	TransferID    string    `json:"transferId"`
	FileID        string    `json:"fileId"`
	Status        string    `json:"status"`
	FileName      string    `json:"fileName"`
	FileSize      int64     `json:"fileSize"`
	MimeType      string    `json:"mimeType"`
	StorageKey    string    `json:"storageKey"`
	ChunkSize     int64     `json:"chunkSize"`
	TotalParts    int       `json:"totalParts"`
	UploadedParts int       `json:"uploadedParts"`
	UploadedBytes int64     `json:"uploadedBytes"`
	Percent       float64   `json:"percent"`
	ExpiresAt     time.Time `json:"expiresAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ToProgressResponse はProgressをレスポンスに変換します
func ToProgressResponse(p query.Progress) ProgressResponse {
	var percent float64
	if p.FileSize > 0 {
		percent = float64(p.UploadedBytes) / float64(p.FileSize) * 100
	}
	return ProgressResponse{
		SessionID:     p.SessionID.String(),
		TransferID:    p.TransferID.String(),
		FileID:        p.FileID.String(),
		Status:        string(p.Status),
		FileName:      p.FileName,
		FileSize:      p.FileSize,
		MimeType:      p.MimeType,
		StorageKey:    p.StorageKey,
		ChunkSize:     p.ChunkSize,
		TotalParts:    p.TotalParts,
		UploadedParts: p.UploadedParts,
		UploadedBytes: p.UploadedBytes,
		Percent:       percent,
		ExpiresAt:     p.ExpiresAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// UploadedPartResponse はアップロード済みパーツです
type UploadedPartResponse struct {
	PartNumber int       `json:"partNumber"`
	Size       int64     `json:"size"`
	ETag       string    `json:"etag"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// UploadedPartsResponse はアップロード済みパーツ一覧レスポンスです
type UploadedPartsResponse struct {
	SessionID   string                 `json:"sessionId"`
	TotalParts  int                    `json:"totalParts"`
	PartNumbers []int                  `json:"partNumbers"`
	Parts       []UploadedPartResponse `json:"parts"`
}

// ToUploadedPartsResponse はListUploadedPartsOutputをレスポンスに変換します
func ToUploadedPartsResponse(o *query.ListUploadedPartsOutput) UploadedPartsResponse {
	parts := make([]UploadedPartResponse, 0, len(o.Parts))
	for _, p := range o.Parts {
		parts = append(parts, UploadedPartResponse{
			PartNumber: p.PartNumber,
			Size:       p.Size,
			ETag:       p.ETag,
			UploadedAt: p.UploadedAt,
		})
	}
	numbers := o.PartNumbers
	if numbers == nil {
		numbers = []int{}
	}
	return UploadedPartsResponse{
		SessionID:   o.SessionID.String(),
		TotalParts:  o.TotalParts,
		PartNumbers: numbers,
		Parts:       parts,
	}
}

// PartTargetResponse はパーツのアップロード先レスポンスです
type PartTargetResponse struct {
	PartNumber int       `json:"partNumber"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	Proxy      bool      `json:"proxy"`
	Offset     int64     `json:"offset"`
	Size       int64     `json:"size"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ToPartTargetResponse はGetPartUploadTargetOutputをレスポンスに変換します
func ToPartTargetResponse(o *query.GetPartUploadTargetOutput) PartTargetResponse {
	return PartTargetResponse{
		PartNumber: o.PartNumber,
		Method:     o.Method,
		URL:        o.URL,
		Proxy:      o.Proxy,
		Offset:     o.Offset,
		Size:       o.Size,
		ExpiresAt:  o.ExpiresAt,
	}
}

// PartReportedResponse はパーツ報告結果レスポンスです
type PartReportedResponse struct {
	SessionID     string `json:"sessionId"`
	PartNumber    int    `json:"partNumber"`
	ETag          string `json:"etag,omitempty"`
	UploadedParts int    `json:"uploadedParts"`
	TotalParts    int    `json:"totalParts"`
	UploadedBytes int64  `json:"uploadedBytes"`
}

// ToPartReportedResponse はReportPartOutputをレスポンスに変換します
func ToPartReportedResponse(o *command.ReportPartOutput, etag string) PartReportedResponse {
	return PartReportedResponse{
		SessionID:     o.SessionID.String(),
		PartNumber:    o.PartNumber,
		ETag:          etag,
		UploadedParts: o.UploadedParts,
		TotalParts:    o.TotalParts,
		UploadedBytes: o.UploadedBytes,
	}
}

// CompleteUploadResponse はアップロード完了レスポンスです
type CompleteUploadResponse struct {
	SessionID     string    `json:"sessionId"`
	StorageKey    string    `json:"storageKey"`
	FileSize      int64     `json:"fileSize"`
	UploadedBytes int64     `json:"uploadedBytes"`
	TotalParts    int       `json:"totalParts"`
	CompletedAt   time.Time `json:"completedAt"`
}

// ToCompleteUploadResponse はCompleteUploadOutputをレスポンスに変換します
func ToCompleteUploadResponse(o *command.CompleteUploadOutput) CompleteUploadResponse {
	return CompleteUploadResponse{
		SessionID:     o.SessionID.String(),
		StorageKey:    o.StorageKey,
		FileSize:      o.FileSize,
		UploadedBytes: o.UploadedBytes,
		TotalParts:    o.TotalParts,
		CompletedAt:   o.CompletedAt,
	}
}

// AbortUploadResponse はアップロード中断レスポンスです
type AbortUploadResponse struct {
	SessionID string `json:"sessionId"`
	Aborted   bool   `json:"aborted"`
}
