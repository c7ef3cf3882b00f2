package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "pdp.v1.DecisionService"

const (
	evaluateMethod       = "/" + ServiceName + "/Evaluate"
	evaluateBatchMethod  = "/" + ServiceName + "/EvaluateBatch"
	explainMethod        = "/" + ServiceName + "/Explain"
	evaluateStreamMethod = "/" + ServiceName + "/EvaluateStream"
)

// DecisionServiceServer is the server API for the decision service. Messages
// are google.protobuf.Struct values carrying the same fields as the JSON API.
type DecisionServiceServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EvaluateBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Explain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EvaluateStream(DecisionService_EvaluateStreamServer) error
}

// DecisionService_EvaluateStreamServer is the server side of EvaluateStream
type DecisionService_EvaluateStreamServer interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

// RegisterDecisionServiceServer registers srv with s
func RegisterDecisionServiceServer(s grpc.ServiceRegistrar, srv DecisionServiceServer) {
	s.RegisterService(&DecisionServiceDesc, srv)
}

// DecisionServiceDesc describes the decision service
var DecisionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DecisionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: unaryHandler(evaluateMethod, DecisionServiceServer.Evaluate)},
		{MethodName: "EvaluateBatch", Handler: unaryHandler(evaluateBatchMethod, DecisionServiceServer.EvaluateBatch)},
		{MethodName: "Explain", Handler: unaryHandler(explainMethod, DecisionServiceServer.Explain)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "EvaluateStream",
			Handler:       evaluateStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "pdp/v1/decision.proto",
}

type unaryMethod func(DecisionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DecisionServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(DecisionServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func evaluateStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(DecisionServiceServer).EvaluateStream(&evaluateStreamServer{stream})
}

type evaluateStreamServer struct {
	grpc.ServerStream
}

func (x *evaluateStreamServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func (x *evaluateStreamServer) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecisionServiceClient is the client API for the decision service
type DecisionServiceClient interface {
	Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	EvaluateBatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Explain(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	EvaluateStream(ctx context.Context, opts ...grpc.CallOption) (DecisionService_EvaluateStreamClient, error)
}

// DecisionService_EvaluateStreamClient is the client side of EvaluateStream
type DecisionService_EvaluateStreamClient interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type decisionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDecisionServiceClient creates a client over cc
func NewDecisionServiceClient(cc grpc.ClientConnInterface) DecisionServiceClient {
	return &decisionServiceClient{cc}
}

func (c *decisionServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *decisionServiceClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, evaluateMethod, in, opts)
}

func (c *decisionServiceClient) EvaluateBatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, evaluateBatchMethod, in, opts)
}

func (c *decisionServiceClient) Explain(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, explainMethod, in, opts)
}

func (c *decisionServiceClient) EvaluateStream(ctx context.Context, opts ...grpc.CallOption) (DecisionService_EvaluateStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &DecisionServiceDesc.Streams[0], evaluateStreamMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &evaluateStreamClient{stream}, nil
}

type evaluateStreamClient struct {
	grpc.ClientStream
}

func (x *evaluateStreamClient) Send(m *structpb.Struct) error {
	return x.ClientStream.SendMsg(m)
}

func (x *evaluateStreamClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
