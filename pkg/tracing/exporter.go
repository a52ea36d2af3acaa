package tracing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

// OTLP transport protocols
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// ExporterConfig points the OTLP exporter at a collector
type ExporterConfig struct {
	// Endpoint is host:port, 4317 for gRPC and 4318 for HTTP by convention
	Endpoint string
	Protocol string
	Insecure bool
	Headers  map[string]string
	Timeout  time.Duration
}

func newExporter(ctx context.Context, cfg ExporterConfig) (*otlptrace.Exporter, error) {
	var client otlptrace.Client
	switch strings.ToLower(cfg.Protocol) {
	case ProtocolGRPC, "":
		client = grpcClient(cfg)
	case ProtocolHTTP:
		client = httpClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q, expected %s or %s", cfg.Protocol, ProtocolGRPC, ProtocolHTTP)
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter for %s: %w", cfg.Endpoint, err)
	}
	return exporter, nil
}

func grpcClient(cfg ExporterConfig) otlptrace.Client {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.NewClient(opts...)
}

func httpClient(cfg ExporterConfig) otlptrace.Client {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(cfg.Timeout))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return otlptracehttp.NewClient(opts...)
}
