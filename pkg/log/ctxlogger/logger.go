package ctxlogger

import (
	"context"

	"github.com/smallbiznis/paycore/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type gatewayKey struct{}

// ContextWithGateway annotates the context with the gateway handling the call.
func ContextWithGateway(ctx context.Context, gateway string) context.Context {
	if gateway == "" {
		return ctx
	}
	return context.WithValue(ctx, gatewayKey{}, gateway)
}

// WithContext enriches base with correlation, trace and gateway fields from ctx.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.L()
	}
	if ctx == nil {
		return base
	}

	fields := make([]zap.Field, 0, 4)
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	fields = append(fields, traceFields(ctx)...)
	if gateway, ok := ctx.Value(gatewayKey{}).(string); ok {
		fields = append(fields, zap.String("gateway", gateway))
	}
	return base.With(fields...)
}

func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
