package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Config はサーバー設定を定義します
type Config struct {
	Host              string        // ホスト (default: "")
	Port              int           // ポート (default: 8080)
	ReadHeaderTimeout time.Duration // ヘッダー読み取りタイムアウト (default: 10s)
	ReadTimeout       time.Duration // 読み取りタイムアウト。パーツ本体の受信を含む (default: 5m)
	WriteTimeout      time.Duration // 書き込みタイムアウト (default: 5m)
	ShutdownTimeout   time.Duration // シャットダウンタイムアウト (default: 10s)
	BodyLimit         string        // JSONリクエストのボディ制限 (default: "1MB")
	Debug             bool          // デバッグモード
}

// DefaultConfig はデフォルト設定を返します
func DefaultConfig() Config {
	return Config{
		Host:              "",
		Port:              8080,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		ShutdownTimeout:   10 * time.Second,
		BodyLimit:         "1MB",
		Debug:             false,
	}
}

// Server はHTTPサーバーを提供します
type Server struct {
	echo   *echo.Echo
	config Config
}

// NewServer は新しいServerを作成します
func NewServer(cfg Config) *Server {
	e := echo.New()

	// 基本設定
	e.Debug = cfg.Debug
	e.HideBanner = true
	e.HidePort = true

	// サーバーのタイムアウト設定
	e.Server.ReadHeaderTimeout = cfg.ReadHeaderTimeout
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	// JSONリクエストのボディ制限。パーツ本体(PUT)はルート側で個別に制限する
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
			Limit: cfg.BodyLimit,
			Skipper: func(c echo.Context) bool {
				return c.Request().Method == http.MethodPut
			},
		}))
	}

	return &Server{
		echo:   e,
		config: cfg,
	}
}

// Echo は内部のecho.Echoを返します
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Config は設定を返します
func (s *Server) Config() Config {
	return s.config
}

// Start はサーバーを開始します
func (s *Server) Start() error {
	if err := s.echo.Start(s.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown はサーバーを停止します
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// Address はサーバーのアドレスを返します
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
