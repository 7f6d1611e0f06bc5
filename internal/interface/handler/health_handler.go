package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// HealthChecker はヘルスチェックを実行するインターフェースです
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthCheckerFunc は関数をHealthCheckerとして扱います
type HealthCheckerFunc func(ctx context.Context) error

// Health はHealthCheckerを実装します
func (f HealthCheckerFunc) Health(ctx context.Context) error {
	return f(ctx)
}

const defaultCheckTimeout = 3 * time.Second

// HealthHandler はヘルスチェック関連のHTTPハンドラーです
type HealthHandler struct {
	checkers map[string]HealthChecker
	timeout  time.Duration
}

// NewHealthHandler は新しいHealthHandlerを作成します
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		checkers: make(map[string]HealthChecker),
		timeout:  defaultCheckTimeout,
	}
}

// RegisterChecker はヘルスチェッカーを登録します。nilは無視します。
func (h *HealthHandler) RegisterChecker(name string, checker HealthChecker) {
	if checker == nil {
		return
	}
	h.checkers[name] = checker
}

// HealthResponse はヘルスチェックレスポンスを定義します
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse はレディネスチェックレスポンスを定義します
type ReadyResponse struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceStatus `json:"services,omitempty"`
}

// ServiceStatus はサービスのステータスを定義します
type ServiceStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Check はライブネスチェックを実行します
// GET /health
func (h *HealthHandler) Check(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready は依存サービス(データベース、オブジェクトストレージ、Redis)の疎通を確認します
// GET /ready
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	var mu sync.Mutex
	services := make(map[string]ServiceStatus, len(h.checkers))
	allHealthy := true

	// 個々の失敗で他のチェックを打ち切らないようWithContextは使わない
	var g errgroup.Group
	for name, checker := range h.checkers {
		g.Go(func() error {
			status := ServiceStatus{Status: "healthy"}
			if err := checker.Health(ctx); err != nil {
				status = ServiceStatus{Status: "unhealthy", Message: err.Error()}
			}

			mu.Lock()
			defer mu.Unlock()
			services[name] = status
			if status.Status != "healthy" {
				allHealthy = false
			}
			return nil
		})
	}
	_ = g.Wait()

	if !allHealthy {
		return c.JSON(http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Services: services})
	}
	return c.JSON(http.StatusOK, ReadyResponse{Status: "ready", Services: services})
}
