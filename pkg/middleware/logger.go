package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/imagegate/pkg/logger"
)

// headerKeyRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const headerKeyRequestID = "X-Request-ID"

// RequestLogger はリクエストごとに1行のアクセスログを出力するGinミドルウェアを返す。
// クライアントがX-Request-IDを送らなかった場合は新しく採番してレスポンスに付与する。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(headerKeyRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerKeyRequestID, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		attrs := accessAttrs(c, requestID, time.Since(start))

		switch {
		case status >= 500:
			slog.ErrorContext(c.Request.Context(), "リクエスト完了", attrs...)
		case status >= 400:
			slog.WarnContext(c.Request.Context(), "リクエスト完了", attrs...)
		default:
			slog.InfoContext(c.Request.Context(), "リクエスト完了", attrs...)
		}
	}
}

// accessAttrs はアクセスログの属性を返す。認証ミドルウェアを通ったリクエストには検証結果の種類を含める。
func accessAttrs(c *gin.Context, requestID string, latency time.Duration) []any {
	attrs := []any{
		"request_id", requestID,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"latency_ms", latency.Milliseconds(),
		"client_ip", c.ClientIP(),
	}
	if userID := GetUserID(c); userID != "" {
		attrs = append(attrs, "user_id", userID)
	}
	if _, ok := c.Get(contextKeyStatus); ok {
		attrs = append(attrs, "auth_status", AuthStatus(c).String())
	}
	return attrs
}
