// Package logger は構造化ログ（JSON）の初期化を提供する。
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// serviceName はすべてのログに付与するサービス名。
const serviceName = "imagegate"

// Init は標準出力にJSONで出力するロガーを生成し、slogの既定ロガーに設定する。
func Init(level string) *slog.Logger {
	logger := New(os.Stdout, level)
	slog.SetDefault(logger)
	return logger
}

// New はwに出力するJSONロガーを生成する。
// コンテキストにリクエストIDがあれば、各レコードにrequest_idとして付与する。
func New(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(&contextHandler{Handler: handler}).With("service", serviceName)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type requestIDKey struct{}

// WithRequestID はリクエストIDを持つコンテキストを返す。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID はコンテキストのリクエストIDを返す。無い場合は空文字列。
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// contextHandler はコンテキストの値をレコードに付与するslog.Handler。
type contextHandler struct {
	slog.Handler
}

// Handle はリクエストIDを付与してから出力する。
func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
