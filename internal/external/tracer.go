package external

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/nlsql/gateway/internal/platform/core"
)

// OTelTracer adapts an OpenTelemetry tracer to core.Tracer, every
// pipeline stage's span abstraction (spec §6's "Tracer" collaborator).
type OTelTracer struct {
	tracer oteltrace.Tracer
}

// NewOTelTracer builds a core.Tracer from provider (the global provider
// when nil) and an instrumentation name, falling back to core.NoopTracer
// if no provider is configured.
func NewOTelTracer(provider oteltrace.TracerProvider, instrumentation string) core.Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	if provider == nil {
		return core.NoopTracer
	}
	if strings.TrimSpace(instrumentation) == "" {
		instrumentation = "nlsql-gateway"
	}
	return &OTelTracer{tracer: provider.Tracer(instrumentation)}
}

// StartSpan implements core.Tracer.
func (t *OTelTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	if t == nil || t.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, name, oteltrace.WithAttributes(convertAttrs(attrs)...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

func convertAttrs(attrs map[string]string) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	result := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		result = append(result, attribute.String(key, v))
	}
	return result
}
