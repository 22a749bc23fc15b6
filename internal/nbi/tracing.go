package nbi

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/orbital-power-sim/internal/logging"
	"github.com/signalsfoundry/orbital-power-sim/internal/observability"
)

const tracerName = "github.com/signalsfoundry/orbital-power-sim/internal/nbi"

// TracingUnaryServerInterceptor names RPC spans NBI/<service>/<method>,
// starting one when the otelgrpc stats handler is not installed, and tags
// them with the gRPC status and the simulation the call touched.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := fmt.Sprintf("NBI/%s/%s", service, method)
		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(name)
		}

		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.String("rpc.full_method", strings.TrimPrefix(info.FullMethod, "/")),
		}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			attrs = append(attrs, attribute.String("request_id", reqID))
		}
		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		span.SetAttributes(attribute.Int("rpc.grpc.status_code", int(status.Code(err))))
		if id := simulationID(resp, err); id != "" {
			span.SetAttributes(attribute.String("simulation.id", id))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status.Code(err).String())
		}

		if created {
			span.End()
		}
		return resp, err
	}
}

// simulationID reads simulation_id from a Struct response or, for failed
// runs, from the Struct attached to the status details.
func simulationID(resp interface{}, err error) string {
	if s, ok := resp.(*structpb.Struct); ok {
		if id := s.GetFields()["simulation_id"].GetStringValue(); id != "" {
			return id
		}
	}
	if err == nil {
		return ""
	}
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			if id := s.GetFields()["simulation_id"].GetStringValue(); id != "" {
				return id
			}
		}
	}
	return ""
}

// StartChildSpan starts a child span for work inside a handler. entityType
// and entityID are optional attributes to aid trace navigation.
func StartChildSpan(ctx context.Context, name, entityType, entityID string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	attrs := make([]attribute.KeyValue, 0, len(extra)+2)
	if entityType != "" {
		attrs = append(attrs, attribute.String("entity_type", entityType))
	}
	if entityID != "" {
		attrs = append(attrs, attribute.String("entity_id", entityID))
	}
	attrs = append(attrs, extra...)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
