package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/agrimarket/internal/apperr"
	"github.com/nao1215/agrimarket/pkg/response"
	"go.uber.org/zap"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレース付きでログを出力し、500エラーを返す。
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("パニックから回復",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				response.Abort(c, apperr.Internal("", "", fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
