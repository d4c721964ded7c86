package jaeger

import (
	"context"
	"errors"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var (
	errNoURL                     = errors.New("URL is empty")
	errNoSvcName                 = errors.New("service name is empty")
	errUnsupportedTraceURLScheme = errors.New("unsupported tracing url scheme")
)

// NewProvider builds a tracer provider exporting spans over OTLP HTTP to the
// collector at u and installs it as the global provider.
func NewProvider(ctx context.Context, svcName string, u url.URL, instanceID string, fraction float64) (*sdktrace.TracerProvider, error) {
	if u == (url.URL{}) {
		return nil, errNoURL
	}
	if svcName == "" {
		return nil, errNoSvcName
	}

	var opts []otlptracehttp.Option
	switch u.Scheme {
	case "http":
		opts = append(opts, otlptracehttp.WithInsecure())
	case "https":
	default:
		return nil, errUnsupportedTraceURLScheme
	}
	opts = append(opts, otlptracehttp.WithEndpoint(u.Host), otlptracehttp.WithURLPath(u.Path))

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	attributes := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceName(svcName),
			semconv.ServiceInstanceID(instanceID),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
	}
	hostAttr, err := resource.New(ctx, attributes...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(fraction)),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(hostAttr),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
