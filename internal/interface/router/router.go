package router

import (
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/webcoletivo/coletivosend/internal/infrastructure/di"
	"github.com/webcoletivo/coletivosend/internal/interface/presenter"
)

// Router はルート定義を管理します
type Router struct {
	echo        *echo.Echo
	handlers    *di.Handlers
	middlewares *di.Middlewares
	// partBodyLimit はプロキシ経由のパーツアップロードで受け付ける最大バイト数です
	partBodyLimit int64
}

// NewRouter は新しいRouterを作成します
func NewRouter(e *echo.Echo, handlers *di.Handlers, middlewares *di.Middlewares, partBodyLimit int64) *Router {
	return &Router{
		echo:          e,
		handlers:      handlers,
		middlewares:   middlewares,
		partBodyLimit: partBodyLimit,
	}
}

// Setup は全てのルートを設定します
func (r *Router) Setup() {
	r.setupHealthRoutes()
	r.setupAPIRoutes()
}

// setupHealthRoutes はヘルスチェックルートを設定します
func (r *Router) setupHealthRoutes() {
	if r.handlers.Health == nil {
		return
	}
	r.echo.GET("/health", r.handlers.Health.Check)
	r.echo.GET("/ready", r.handlers.Health.Ready)
}

// setupAPIRoutes はAPIルートを設定します
func (r *Router) setupAPIRoutes() {
	api := r.echo.Group("/api/v1")

	api.GET("/", func(c echo.Context) error {
		return presenter.OK(c, map[string]string{
			"message": "coletivosend upload API v1",
		})
	})

	r.setupUploadRoutes(api)
}

// setupUploadRoutes はチャンクアップロード関連ルートを設定します
func (r *Router) setupUploadRoutes(api *echo.Group) {
	h := r.handlers.Upload
	uploads := api.Group("/uploads", r.middlewares.JWTAuth.Authenticate())

	var initMiddlewares []echo.MiddlewareFunc
	if r.middlewares.RateLimit != nil {
		initMiddlewares = append(initMiddlewares, r.middlewares.RateLimit.ByUser(r.middlewares.InitUploadLimit))
	}
	uploads.POST("", h.InitiateUpload, initMiddlewares...)

	// 静的パスは :sessionId より先に登録する
	uploads.GET("/lookup", h.LookupUpload)

	uploads.GET("/:sessionId", h.GetProgress)
	uploads.DELETE("/:sessionId", h.AbortUpload)
	uploads.POST("/:sessionId/complete", h.CompleteUpload)

	uploads.GET("/:sessionId/parts", h.ListParts)
	uploads.POST("/:sessionId/parts", h.ReportPart)
	uploads.GET("/:sessionId/parts/:partNumber/target", h.GetPartTarget)
	uploads.PUT("/:sessionId/parts/:partNumber", h.UploadPart, r.partBodyLimitMiddleware())
}

func (r *Router) partBodyLimitMiddleware() echo.MiddlewareFunc {
	if r.partBodyLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.BodyLimit(strconv.FormatInt(r.partBodyLimit, 10) + "B")
}
