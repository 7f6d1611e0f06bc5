// Package logger は log/slog のデフォルトロガーを構成し、
// コンテキストに積まれた属性 (リクエストID、アップロードセッションIDなど) を
// 各ログ行へ付与します。
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config はロガー設定を定義します
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json, text
	Output    string // stdout, stderr, またはファイルパス
	AddSource bool
}

// DefaultConfig はデフォルト設定を返します
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stdout"}
}

// Setup は cfg に従ってデフォルトロガーを差し替えます
func Setup(cfg Config) error {
	w, err := openOutput(cfg.Output)
	if err != nil {
		return err
	}

	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		h = slog.NewTextHandler(w, opts)
	case "json", "":
		h = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	slog.SetDefault(slog.New(h))
	return nil
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}
	return f, nil
}

type attrsKey struct{}

// ContextWith は key/value 形式の属性をコンテキストに積みます。
// 同じキーを再度積んだ場合は後の値が優先されます。
func ContextWith(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(attrsKey{}).([]any)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// ContextWithRequestID はリクエストIDをコンテキストに追加します
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return ContextWith(ctx, "request_id", requestID)
}

// ContextWithUserID はユーザーIDをコンテキストに追加します
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWith(ctx, "user_id", userID)
}

// ContextWithUploadSession はアップロードセッションIDをコンテキストに追加します
func ContextWithUploadSession(ctx context.Context, sessionID fmt.Stringer) context.Context {
	return ContextWith(ctx, "session_id", sessionID.String())
}

// From はコンテキストの属性を付与したロガーを返します
func From(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if attrs, ok := ctx.Value(attrsKey{}).([]any); ok {
		l = l.With(dedupe(attrs)...)
	}
	return l
}

// dedupe は後勝ちでキー重複を取り除きます
func dedupe(args []any) []any {
	seen := make(map[string]int, len(args)/2)
	out := make([]any, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if idx, dup := seen[key]; dup {
			out[idx+1] = args[i+1]
			continue
		}
		seen[key] = len(out)
		out = append(out, key, args[i+1])
	}
	return out
}

func Debug(ctx context.Context, msg string, args ...any) { From(ctx).DebugContext(ctx, msg, args...) }
func Info(ctx context.Context, msg string, args ...any)  { From(ctx).InfoContext(ctx, msg, args...) }
func Warn(ctx context.Context, msg string, args ...any)  { From(ctx).WarnContext(ctx, msg, args...) }
func Error(ctx context.Context, msg string, args ...any) { From(ctx).ErrorContext(ctx, msg, args...) }
