// Package server provides the gRPC server implementation
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/authz-engine/trading-pdp/internal/audit"
	"github.com/authz-engine/trading-pdp/internal/engine"
	"github.com/authz-engine/trading-pdp/internal/metrics"
	"github.com/authz-engine/trading-pdp/pkg/types"
)

// Server is the gRPC decision server
type Server struct {
	engine       *engine.Engine
	audit        audit.Logger
	metrics      metrics.Metrics
	grpcServer   *grpc.Server
	healthServer *health.Server
	logger       *zap.Logger
	config       Config
}

// Config configures the gRPC server
type Config struct {
	// Port is the TCP port to listen on
	Port int
	// MaxConcurrentStreams limits concurrent streams per connection
	MaxConcurrentStreams uint32
	// MaxRecvMsgSize is the maximum message size in bytes
	MaxRecvMsgSize int
	// MaxSendMsgSize is the maximum message size in bytes
	MaxSendMsgSize int
	// ConnectionTimeout is the timeout for establishing connections
	ConnectionTimeout time.Duration
	// KeepaliveTime is the interval for keepalive pings
	KeepaliveTime time.Duration
	// KeepaliveTimeout is the timeout for keepalive responses
	KeepaliveTimeout time.Duration
	// EnableReflection enables gRPC reflection for debugging
	EnableReflection bool
	// MaxBatchSize caps the number of requests in one EvaluateBatch call
	MaxBatchSize int
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Port:                 50051,
		MaxConcurrentStreams: 1000,
		MaxRecvMsgSize:       4 * 1024 * 1024, // 4MB
		MaxSendMsgSize:       4 * 1024 * 1024, // 4MB
		ConnectionTimeout:    30 * time.Second,
		KeepaliveTime:        30 * time.Second,
		KeepaliveTimeout:     10 * time.Second,
		EnableReflection:     false,
		MaxBatchSize:         100,
	}
}

// New creates a new gRPC server. auditLogger and m may be nil.
func New(cfg Config, eng *engine.Engine, auditLogger audit.Logger, m metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if auditLogger == nil {
		auditLogger = audit.NewNoopLogger()
	}
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}

	requestIDInterceptor := NewRequestIDInterceptor()
	loggingInterceptor := NewLoggingInterceptor(logger)
	metricsInterceptor := NewMetricsInterceptor(m)
	recoveryInterceptor := NewRecoveryInterceptor(logger)

	opts := []grpc.ServerOption{
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.ConnectionTimeout(cfg.ConnectionTimeout),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			requestIDInterceptor.Unary(),
			loggingInterceptor.Unary(),
			metricsInterceptor.Unary(),
			recoveryInterceptor.Unary(),
		),
		grpc.ChainStreamInterceptor(
			requestIDInterceptor.Stream(),
			loggingInterceptor.Stream(),
			metricsInterceptor.Stream(),
			recoveryInterceptor.Stream(),
		),
	}

	grpcServer := grpc.NewServer(opts...)

	srv := &Server{
		engine:       eng,
		audit:        auditLogger,
		metrics:      m,
		grpcServer:   grpcServer,
		healthServer: health.NewServer(),
		logger:       logger,
		config:       cfg,
	}

	RegisterDecisionServiceServer(grpcServer, srv)

	grpc_health_v1.RegisterHealthServer(grpcServer, srv.healthServer)
	srv.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	srv.healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	if cfg.EnableReflection {
		reflection.Register(grpcServer)
	}

	return srv, nil
}

// Start listens on the configured port and serves until Stop
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.logger.Info("Starting gRPC server",
		zap.Int("port", s.config.Port),
		zap.Bool("reflection", s.config.EnableReflection),
	)

	return s.Serve(lis)
}

// Serve serves gRPC on lis
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop marks the service not serving and gracefully stops the gRPC server
func (s *Server) Stop() {
	s.logger.Info("Stopping gRPC server")
	s.healthServer.Shutdown()
	s.grpcServer.GracefulStop()
}

// Evaluate implements the Evaluate RPC method
func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := requestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	decision := s.engine.Evaluate(req)
	s.audit.LogDecision(ctx, decision)

	return decisionToStruct(decision), nil
}

// EvaluateBatch implements the EvaluateBatch RPC method. The request is
// {"requests": [...]} and the response {"decisions": [...]}.
func (s *Server) EvaluateBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	list := in.GetFields()["requests"].GetListValue()
	if list == nil {
		return nil, status.Error(codes.InvalidArgument, "requests must be a list")
	}
	if n := len(list.GetValues()); n > s.config.MaxBatchSize {
		return nil, status.Errorf(codes.InvalidArgument, "batch of %d exceeds limit of %d requests", n, s.config.MaxBatchSize)
	}

	reqs := make([]*types.Request, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		req, err := requestFromStruct(v.GetStructValue())
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "requests[%d]: %v", i, err)
		}
		reqs = append(reqs, req)
	}

	decisions := s.engine.EvaluateBatch(ctx, reqs)
	values := make([]*structpb.Value, 0, len(decisions))
	for _, d := range decisions {
		s.audit.LogDecision(ctx, d)
		values = append(values, structpb.NewStructValue(decisionToStruct(d)))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"decisions": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}, nil
}

// Explain implements the Explain RPC method
func (s *Server) Explain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := requestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	decision, checks := s.engine.Explain(req)
	s.audit.LogDecision(ctx, decision)

	return explainToStruct(decision, checks), nil
}

// EvaluateStream implements the EvaluateStream RPC method (bidirectional
// streaming). An invalid request gets an {"error": ...} reply and the stream
// stays open.
func (s *Server) EvaluateStream(stream DecisionService_EvaluateStreamServer) error {
	ctx := stream.Context()
	for {
		in, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return status.Errorf(codes.Internal, "failed to receive request: %v", err)
		}

		req, err := requestFromStruct(in)
		if err != nil {
			s.metrics.RecordTransportError("grpc", "bad_request")
			if err := stream.Send(errorStruct(err)); err != nil {
				return status.Errorf(codes.Internal, "failed to send error response: %v", err)
			}
			continue
		}

		decision := s.engine.Evaluate(req)
		s.audit.LogDecision(ctx, decision)

		if err := stream.Send(decisionToStruct(decision)); err != nil {
			return status.Errorf(codes.Internal, "failed to send response: %v", err)
		}
	}
}
