package server

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/authz-engine/trading-pdp/internal/audit"
	"github.com/authz-engine/trading-pdp/internal/metrics"
)

// RequestIDMetadataKey carries the request ID in gRPC metadata
const RequestIDMetadataKey = "x-request-id"

// RequestIDInterceptor propagates x-request-id, minting one when absent, and
// tags the context for audit
type RequestIDInterceptor struct{}

// NewRequestIDInterceptor creates a new request ID interceptor
func NewRequestIDInterceptor() *RequestIDInterceptor {
	return &RequestIDInterceptor{}
}

func (i *RequestIDInterceptor) tag(ctx context.Context) context.Context {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
			id = vals[0]
		}
	}
	if id == "" {
		id = uuid.New().String()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))

	return audit.WithTransport(audit.WithRequestID(ctx, id), "grpc")
}

// Unary returns a unary server interceptor for request IDs
func (i *RequestIDInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		return handler(i.tag(ctx), req)
	}
}

// Stream returns a stream server interceptor for request IDs
func (i *RequestIDInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		return handler(srv, &taggedStream{ServerStream: ss, ctx: i.tag(ss.Context())})
	}
}

// taggedStream overrides the stream context
type taggedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *taggedStream) Context() context.Context {
	return s.ctx
}

// LoggingInterceptor provides request logging
type LoggingInterceptor struct {
	logger *zap.Logger
}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor(logger *zap.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{logger: logger}
}

// Unary returns a unary server interceptor for logging
func (i *LoggingInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		i.logger.Info("gRPC request",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
			zap.String("request_id", audit.RequestIDFromContext(ctx)),
		)

		return resp, err
	}
}

// Stream returns a stream server interceptor for logging
func (i *LoggingInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		err := handler(srv, ss)

		i.logger.Info("gRPC stream",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
			zap.String("request_id", audit.RequestIDFromContext(ss.Context())),
		)

		return err
	}
}

// MetricsInterceptor tracks in-flight calls and counts failed ones by code
type MetricsInterceptor struct {
	metrics metrics.Metrics
}

// NewMetricsInterceptor creates a new metrics interceptor
func NewMetricsInterceptor(m metrics.Metrics) *MetricsInterceptor {
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	return &MetricsInterceptor{metrics: m}
}

func (i *MetricsInterceptor) observe(err error) {
	if err != nil {
		i.metrics.RecordTransportError("grpc", status.Code(err).String())
	}
}

// Unary returns a unary server interceptor for metrics
func (i *MetricsInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		i.metrics.IncActiveRequests()
		defer i.metrics.DecActiveRequests()

		resp, err := handler(ctx, req)
		i.observe(err)
		return resp, err
	}
}

// Stream returns a stream server interceptor for metrics
func (i *MetricsInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		i.metrics.IncActiveRequests()
		defer i.metrics.DecActiveRequests()

		err := handler(srv, ss)
		i.observe(err)
		return err
	}
}

// RecoveryInterceptor provides panic recovery
type RecoveryInterceptor struct {
	logger *zap.Logger
}

// NewRecoveryInterceptor creates a new recovery interceptor
func NewRecoveryInterceptor(logger *zap.Logger) *RecoveryInterceptor {
	return &RecoveryInterceptor{logger: logger}
}

// Unary returns a unary server interceptor for panic recovery
func (i *RecoveryInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("Panic recovered in gRPC handler",
					zap.Any("panic", r),
					zap.String("method", info.FullMethod),
					zap.String("stack", string(debug.Stack())),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// Stream returns a stream server interceptor for panic recovery
func (i *RecoveryInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("Panic recovered in gRPC stream handler",
					zap.Any("panic", r),
					zap.String("method", info.FullMethod),
					zap.String("stack", string(debug.Stack())),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()

		return handler(srv, ss)
	}
}
