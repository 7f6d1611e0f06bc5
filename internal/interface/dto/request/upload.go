package request

// InitiateUploadRequest はアップロードセッション開始リクエストです
type InitiateUploadRequest struct {
	TransferID string `json:"transferId" validate:"required,uuid"`
	FileID     string `json:"fileId" validate:"required,uuid"`
	FileName   string `json:"fileName" validate:"required,max=255,filename"`
	FileSize   int64  `json:"fileSize" validate:"required,min=1"`
	MimeType   string `json:"mimeType" validate:"max=255"`
}

// LookupUploadRequest は識別子によるセッション検索リクエストです
type LookupUploadRequest struct {
	TransferID string `query:"transferId" validate:"required,uuid"`
	FileID     string `query:"fileId" validate:"required,uuid"`
}

// ReportPartRequest はパーツ完了報告リクエストです
type ReportPartRequest struct {
	PartNumber int    `json:"partNumber" validate:"required,min=1,max=10000"`
	ETag       string `json:"etag" validate:"required,max=256"`
	Size       int64  `json:"size" validate:"required,min=1"`
}
