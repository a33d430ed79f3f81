package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/apperr"
)

func Recovery(l *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		stack := debug.Stack()
		l.LogAttrs(c.Request.Context(), slog.LevelError, "panic_recovered",
			slog.String("request_id", GetRequestID(c)),
			slog.Any("panic", recovered),
			slog.String("stack", string(stack)),
		)

		Fail(c, apperr.Wrap(fmt.Errorf("panic: %v", recovered)))
	})
}
