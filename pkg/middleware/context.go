package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
)

const (
	// HeaderProjectID is the header key for the project whose pool a request works on
	HeaderProjectID = "X-Project-ID"
	// HeaderUserID is the header key for the reviewer or client making the request
	HeaderUserID = "X-User-ID"
)

// Context copies the request id, project and user headers into the request context.
// A request without an id gets a fresh one, returned in the response header.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := strings.TrimSpace(req.Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := context.SetRequestID(req.Context(), requestID)
			ctx = context.SetProjectID(ctx, strings.TrimSpace(req.Header.Get(HeaderProjectID)))
			ctx = context.SetUserID(ctx, strings.TrimSpace(req.Header.Get(HeaderUserID)))
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
