package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/utils"
)

const tracerName = "github.com/aetherhq/aether-backend"

// OtelConfig names the process in exported resources.
type OtelConfig struct {
	ServiceName string
	Environment string
	Version     string
}

// exportConfig is the OTEL_* environment surface.
type exportConfig struct {
	Enabled     bool
	Endpoint    string
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

func loadExportConfig(log *logger.Logger) exportConfig {
	cfg := exportConfig{
		Enabled:     utils.GetEnvAsBool("OTEL_ENABLED", false, log),
		Endpoint:    utils.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
		Headers:     utils.GetEnvAsMap("OTEL_EXPORTER_OTLP_HEADERS", log),
		Insecure:    utils.GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
		SampleRatio: utils.GetEnvAsFloat("OTEL_SAMPLER_RATIO", 0.1, log),
	}
	cfg.SampleRatio = min(max(cfg.SampleRatio, 0), 1)
	return cfg
}

func (c exportConfig) exporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if c.Endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.Endpoint)}
	if c.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(c.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.Headers))
	}
	return otlptracehttp.New(ctx, opts...)
}

var (
	otelOnce     sync.Once
	otelShutdown = func(context.Context) error { return nil }
)

// InitOTel installs the global tracer provider when OTEL_ENABLED is set. The
// returned shutdown flushes pending spans and is safe to call when tracing is
// off.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelOnce.Do(func() {
		exp := loadExportConfig(log)
		if !exp.Enabled {
			return
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = "aether"
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(cfg.Version),
			attribute.String("deployment.environment", cfg.Environment),
		))
		if err != nil {
			log.Warn("otel resource init failed (continuing)", "error", err)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(exp.SampleRatio))),
			sdktrace.WithResource(res),
		}
		if exporter, err := exp.exporter(ctx); err != nil {
			log.Warn("otel exporter init failed; spans will not be exported", "error", err)
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
		otelShutdown = tp.Shutdown
		log.Info("otel tracing initialized", "service", name, "endpoint", exp.Endpoint, "sample_ratio", exp.SampleRatio)
	})
	return otelShutdown
}

// StartStage opens a span for one pipeline stage of an upload.
func StartStage(ctx context.Context, stage, orgID, uploadID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline."+stage, trace.WithAttributes(
		attribute.String("aether.stage", stage),
		attribute.String("aether.org_id", orgID),
		attribute.String("aether.upload_id", uploadID),
	))
}
