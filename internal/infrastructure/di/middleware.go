package di

import (
	"github.com/webcoletivo/coletivosend/internal/infrastructure/cache"
	"github.com/webcoletivo/coletivosend/internal/interface/middleware"
)

// Middlewares はアプリケーションのミドルウェアを保持します
type Middlewares struct {
	JWTAuth *middleware.JWTAuthMiddleware
	// RateLimit はRedis未設定の場合nilです
	RateLimit       *middleware.RateLimitMiddleware
	InitUploadLimit cache.RateLimitConfig
}

// NewMiddlewares はContainerから全てのミドルウェアを初期化します
func NewMiddlewares(c *Container) *Middlewares {
	m := &Middlewares{
		InitUploadLimit: cache.UploadInitRateLimit(c.config.Upload.InitRateLimit, c.config.Upload.InitRateLimitSpan),
	}

	// nilポインタを非nilのインターフェースとして渡さない
	if c.JWTBlacklist != nil {
		m.JWTAuth = middleware.NewJWTAuthMiddleware(c.JWTService, c.JWTBlacklist)
	} else {
		m.JWTAuth = middleware.NewJWTAuthMiddleware(c.JWTService, nil)
	}

	if c.RateLimiter != nil && c.config.Upload.InitRateLimit > 0 {
		m.RateLimit = middleware.NewRateLimitMiddleware(c.RateLimiter)
	}

	return m
}
