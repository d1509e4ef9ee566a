// Package response はHTTPレスポンスのエンベロープを書き出す共通処理を提供する。
//
// 成功時は任意のJSONボディを、失敗時は {"error": "..."} 形式のボディを返す。
// いずれも非ASCII文字をエスケープせずUTF-8のまま出力する。
package response

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/imagegate/pkg/apperror"
)

// ErrorBody は失敗時のレスポンスボディ。
type ErrorBody struct {
	// Error はクライアント向けのエラーメッセージ。
	Error string `json:"error"`
}

// JSON は成功レスポンスを書き出す。
func JSON(c *gin.Context, status int, body any) {
	c.PureJSON(status, body)
}

// Error はerrを分類し、対応するステータスコードでエラーレスポンスを書き出す。
// 原因となったエラーはサーバーログにのみ出力し、レスポンスには含めない。
// 後続のハンドラは実行されない。
func Error(c *gin.Context, err error) {
	appErr := apperror.From(err)
	status := appErr.Status()

	attrs := []any{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", status,
		"kind", appErr.Kind.String(),
	}
	if appErr.Err != nil {
		attrs = append(attrs, "error", appErr.Err.Error())
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "リクエストの処理に失敗", attrs...)
	} else {
		slog.WarnContext(c.Request.Context(), "リクエストを拒否", attrs...)
	}

	c.Abort()
	c.PureJSON(status, ErrorBody{Error: appErr.Message})
}
