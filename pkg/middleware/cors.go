package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 固定のCORSヘッダー値。
const (
	corsAllowMethods = "GET,POST,DELETE,OPTIONS"
	corsAllowHeaders = "Content-Type,Authorization"
)

// CORS は全レスポンスに固定のCORSヘッダーを付与するGinミドルウェアを返す。
// allowOriginが空の場合は "*" を使う。
// OPTIONSリクエストは検証や認証より前に204で応答し、後続のハンドラは実行しない。
func CORS(allowOrigin string) gin.HandlerFunc {
	if allowOrigin == "" {
		allowOrigin = "*"
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
