package di

import (
	"github.com/webcoletivo/coletivosend/internal/interface/handler"
)

// Handlers はアプリケーションのハンドラーを保持します
type Handlers struct {
	Health *handler.HealthHandler
	Upload *handler.UploadHandler
}

// NewHandlers はContainerから全てのハンドラーを初期化します
func NewHandlers(c *Container) *Handlers {
	// Health Handler
	healthHandler := handler.NewHealthHandler()
	if c.PgClient != nil {
		healthHandler.RegisterChecker("postgres", c.PgClient)
	}
	if c.RedisClient != nil {
		healthHandler.RegisterChecker("redis", c.RedisClient)
	}
	if c.StorageHealth != nil {
		healthHandler.RegisterChecker("storage", c.StorageHealth)
	}

	return &Handlers{
		Health: healthHandler,
		Upload: newUploadHandler(c),
	}
}

// NewHandlersForTest はテスト用にハンドラーを初期化します（HealthHandlerなし）
func NewHandlersForTest(c *Container) *Handlers {
	return &Handlers{
		Health: nil, // テストではHealthHandlerは不要
		Upload: newUploadHandler(c),
	}
}

func newUploadHandler(c *Container) *handler.UploadHandler {
	return handler.NewUploadHandler(
		handler.UploadCommands{
			Initiate:   c.Upload.InitiateUpload,
			ReportPart: c.Upload.ReportPart,
			UploadPart: c.Upload.UploadPart,
			Complete:   c.Upload.CompleteUpload,
			Abort:      c.Upload.AbortUpload,
		},
		handler.UploadQueries{
			GetProgress:   c.Upload.GetProgress,
			ListParts:     c.Upload.ListUploadedParts,
			FindActive:    c.Upload.FindActiveSession,
			GetPartTarget: c.Upload.GetPartUploadTarget,
		},
	)
}
