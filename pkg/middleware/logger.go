package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
)

// quietPrefixes are polled by orchestrators and scrapers and are not access logged
var quietPrefixes = []string{"/health/", "/metrics"}

// Logger writes one access log entry per request. Errors are rendered by the error handler
// first so the entry carries the final status.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			for _, prefix := range quietPrefixes {
				if strings.HasPrefix(req.URL.Path, prefix) {
					return nil
				}
			}

			res := c.Response()
			ctx := req.Context()
			entry := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":  context.GetRequestID(ctx),
				"project_id":  context.GetProjectID(ctx),
				"user_id":     context.GetUserID(ctx),
				"method":      req.Method,
				"route":       c.Path(),
				"uri":         req.RequestURI,
				"status":      res.Status,
				"remote_ip":   c.RealIP(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes_in":    req.ContentLength,
				"bytes_out":   res.Size,
			})
			if res.Status >= http.StatusInternalServerError {
				entry.Warn("Request failed")
			} else {
				entry.Info("Request")
			}
			return nil
		}
	}
}
