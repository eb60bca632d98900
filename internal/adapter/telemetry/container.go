package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"todostream/internal/core/errs"
	"todostream/internal/core/port"
	"todostream/pkg/metrics"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	MetricsAddr    string
	OTLPEndpoint   string
}

func (c *Config) normalize() {
	if c.ServiceName == "" {
		c.ServiceName = "todostream"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.OTLPEndpoint == "" {
		c.OTLPEndpoint = "localhost:4317"
	}
}

// Container owns the telemetry providers and the metrics endpoint. It is
// built once at startup and shut down after the stores drain.
type Container struct {
	TracerProvider     *sdktrace.TracerProvider
	MeterProvider      *sdkmetric.MeterProvider
	PrometheusRegistry *prometheus.Registry
	MetricsServer      *http.Server
	AppMetrics         *metrics.AppMetrics
}

func NewContainer(ctx context.Context, config Config, logger zerolog.Logger) (*Container, error) {
	config.normalize()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(config.ServiceName),
		semconv.ServiceVersionKey.String(config.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(config.Environment),
	)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewAppMetrics(registry)

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	otlpExporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithEndpoint(config.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, errs.New("telemetry.new", errs.CodeConfig,
			errs.WithMessage("creating otlp trace exporter"),
			errs.WithCause(err))
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(otlpExporter,
			sdktrace.WithBatchTimeout(1*time.Second),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, errs.New("telemetry.new", errs.CodeConfig,
			errs.WithMessage("starting runtime instrumentation"),
			errs.WithCause(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	metricsServer := &http.Server{
		Addr:         config.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", config.MetricsAddr).Msg("metrics server failed")
		}
	}()

	appMetrics.StartSystemMetrics(ctx)

	return &Container{
		TracerProvider:     tracerProvider,
		MeterProvider:      meterProvider,
		PrometheusRegistry: registry,
		MetricsServer:      metricsServer,
		AppMetrics:         appMetrics,
	}, nil
}

func (c *Container) Shutdown(ctx context.Context) error {
	if err := c.TracerProvider.Shutdown(ctx); err != nil {
		return err
	}

	if err := c.MeterProvider.Shutdown(ctx); err != nil {
		return err
	}

	if err := c.MetricsServer.Shutdown(ctx); err != nil {
		return err
	}

	return nil
}

// NewTelemetryProbe builds the tracing probe backed by this container's
// providers.
func (c *Container) NewTelemetryProbe(logger zerolog.Logger) port.Telemetry {
	return NewOTelProbe(logger)
}
