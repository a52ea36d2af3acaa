// Package routes assembles the HTTP API
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/imports"
)

// Options configures the HTTP server
type Options struct {
	ServiceName  string
	BodyLimit    string
	AllowOrigins []string
	AllowMethods []string
}

// New builds the echo server with middleware, probes, metrics and the API routes
func New(opts Options, logger ectologger.Logger, svc imports.Service, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(middleware.Context())
	e.Use(otelecho.Middleware(opts.ServiceName))
	e.Use(middleware.Logger(logger))
	if opts.BodyLimit != "" {
		e.Use(echomw.BodyLimit(opts.BodyLimit))
	}
	if len(opts.AllowOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: opts.AllowOrigins,
			AllowMethods: opts.AllowMethods,
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID, middleware.HeaderProjectID, middleware.HeaderUserID},
		}))
	}

	if checker != nil {
		checker.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	imports.Register(api.Group("/imports"), svc)

	return e
}
