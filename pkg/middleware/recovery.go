package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/imagegate/pkg/apperror"
	"github.com/nao1215/imagegate/pkg/response"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレースをログに出力し、詳細を含まない500エラーを返す。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			slog.ErrorContext(c.Request.Context(), "パニックが発生しました",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err, ok := r.(error)
			if !ok {
				err = errors.New(fmt.Sprint(r))
			}
			response.Error(c, apperror.Internal("Internal server error.", err))
		}()
		c.Next()
	}
}
