package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/context"
)

func newEcho(handler echo.HandlerFunc) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	e.GET("/", handler)
	return e
}

func serve(e *echo.Echo, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestContext(t *testing.T) {
	t.Run("copies headers into the request context", func(t *testing.T) {
		var project, user, requestID string
		e := newEcho(func(c echo.Context) error {
			ctx := c.Request().Context()
			project = context.GetProjectID(ctx)
			user = context.GetUserID(ctx)
			requestID = context.GetRequestID(ctx)
			return c.NoContent(http.StatusNoContent)
		})

		rec := serve(e, map[string]string{
			HeaderProjectID:       "proj-1",
			HeaderUserID:          "reviewer-7",
			echo.HeaderXRequestID: "req-123",
		})

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "proj-1", project)
		assert.Equal(t, "reviewer-7", user)
		assert.Equal(t, "req-123", requestID)
		assert.Equal(t, "req-123", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("generates a request id", func(t *testing.T) {
		e := newEcho(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
		rec := serve(e, nil)
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"http error", httperror.NewHTTPError(http.StatusNotFound, "import b1 not found"), http.StatusNotFound, "import b1 not found"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, "nope"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho(func(echo.Context) error { return tt.err })
			rec := serve(e, map[string]string{echo.HeaderXRequestID: "req-9"})

			require.Equal(t, tt.code, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Message, tt.message)
			assert.Equal(t, "req-9", resp.RequestID)
		})
	}
}
