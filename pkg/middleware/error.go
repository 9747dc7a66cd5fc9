package middleware

import (
	"errors"
	"net/http"

	"pagewatch/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error as the errutil JSON
// envelope. Handlers only need to call c.Error(err) and return.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if !errors.As(last.Err, &base) {
			zap.L().Error("[HTTP] unhandled error", zap.String("path", c.FullPath()), zap.Error(last.Err))
			c.JSON(http.StatusInternalServerError, errutil.BaseError{
				Kind:    errutil.KindUnknown,
				Message: "internal error",
			}.JSON())
			return
		}

		status := base.Kind.HTTPStatus()
		if status >= http.StatusInternalServerError {
			zap.L().Error("[HTTP] request failed", zap.String("path", c.FullPath()), zap.Error(last.Err))
		}
		c.JSON(status, base.JSON())
	}
}
