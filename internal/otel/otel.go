// Package otel wires OpenTelemetry for tab-switcher.
//
// Spans cover preview captures and tab activation. Metrics count fetch
// dispatches, failures and overlay outcomes. Without an OTLP endpoint every
// instrument is a no-op, the normal case for an interactive overlay.
package otel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"
)

const serviceName = "tab-switcher"

// Version is set by the caller from cmd.Version.
var Version = "dev"

// OTELConfig configures Init.
type OTELConfig struct {
	Endpoint string // OTLP/HTTP base URL, e.g. "http://localhost:4318"
	Headers  string // "k=v,k2=v2", the OTEL_EXPORTER_OTLP_HEADERS format
	// ExportInterval is the metric push period. Overlays live for seconds;
	// Shutdown flushes whatever is left.
	ExportInterval time.Duration
	// Log receives exporter errors, which would otherwise be printed over
	// the overlay. May be nil.
	Log pslog.Logger
}

// Telemetry holds the providers and instruments.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Tracer  trace.Tracer
	Metrics *Metrics
}

// parseHeaders parses "k=v,k2=v2". Pairs without a key are skipped.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		headers[k] = strings.TrimSpace(v)
	}
	return headers
}

// exporterTarget is an OTLP endpoint split into the parts the exporters take.
type exporterTarget struct {
	host     string
	basePath string
	insecure bool
	headers  map[string]string
}

func parseTarget(endpoint, headers string) (exporterTarget, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return exporterTarget{}, fmt.Errorf("otel: invalid endpoint URL %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return exporterTarget{}, fmt.Errorf("otel: endpoint %q has no host", endpoint)
	}
	return exporterTarget{
		host:     u.Host,
		basePath: strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http",
		headers:  parseHeaders(headers),
	}, nil
}

func (t exporterTarget) traceOptions() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(t.host),
		otlptracehttp.WithURLPath(t.basePath + "/v1/traces"),
	}
	if t.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(t.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(t.headers))
	}
	return opts
}

func (t exporterTarget) metricOptions() []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(t.host),
		otlpmetrichttp.WithURLPath(t.basePath + "/v1/metrics"),
	}
	if t.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(t.headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(t.headers))
	}
	return opts
}

// Init sets up OTLP/HTTP exporters when cfg.Endpoint is set and registers
// them globally. Without an endpoint the returned Telemetry is a no-op whose
// tracer and instruments still work.
func Init(ctx context.Context, cfg OTELConfig) (*Telemetry, error) {
	if cfg.Log != nil {
		log := cfg.Log.With("component", "otel")
		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			log.Debug("otel export failed", "err", err)
		}))
	}

	t := &Telemetry{}
	if cfg.Endpoint != "" {
		if err := t.startExporters(ctx, cfg); err != nil {
			return nil, err
		}
	}

	t.Tracer = otel.Tracer(serviceName)
	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	t.Metrics = metrics
	return t, nil
}

func (t *Telemetry) startExporters(ctx context.Context, cfg OTELConfig) error {
	target, err := parseTarget(cfg.Endpoint, cfg.Headers)
	if err != nil {
		return err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("otel resource: %w", err)
	}

	traceExp, err := otlptracehttp.New(ctx, target.traceOptions()...)
	if err != nil {
		return fmt.Errorf("otel trace exporter: %w", err)
	}
	metricExp, err := otlpmetrichttp.New(ctx, target.metricOptions()...)
	if err != nil {
		_ = traceExp.Shutdown(ctx)
		return fmt.Errorf("otel metric exporter: %w", err)
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	t.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(t.tp)
	otel.SetMeterProvider(t.mp)
	return nil
}

// Enabled reports whether exporters are configured.
func (t *Telemetry) Enabled() bool {
	return t != nil && (t.tp != nil || t.mp != nil)
}

// Shutdown flushes the providers, bounded so a dead collector cannot keep
// the process alive after the overlay closed.
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if t.tp != nil {
		_ = t.tp.Shutdown(ctx)
	}
	if t.mp != nil {
		_ = t.mp.Shutdown(ctx)
	}
}
