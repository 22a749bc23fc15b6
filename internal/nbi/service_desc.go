package nbi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// SimulationServiceName is the fully-qualified gRPC service name.
const SimulationServiceName = "solarsim.v1.SimulationService"

const (
	runSimulationMethod = "/" + SimulationServiceName + "/RunSimulation"
	getRunMethod        = "/" + SimulationServiceName + "/GetRun"
	listRunsMethod      = "/" + SimulationServiceName + "/ListRuns"
	listExamplesMethod  = "/" + SimulationServiceName + "/ListExamples"
)

// SimulationServiceServer is the server API. Messages are
// google.protobuf.Struct values carrying the same JSON documents as the
// REST API.
type SimulationServiceServer interface {
	RunSimulation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListExamples(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterSimulationServiceServer registers srv on s.
func RegisterSimulationServiceServer(s grpc.ServiceRegistrar, srv SimulationServiceServer) {
	s.RegisterService(&SimulationServiceDesc, srv)
}

// SimulationServiceDesc describes the service for grpc.Server.
var SimulationServiceDesc = grpc.ServiceDesc{
	ServiceName: SimulationServiceName,
	HandlerType: (*SimulationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunSimulation", Handler: unaryHandler(runSimulationMethod, SimulationServiceServer.RunSimulation)},
		{MethodName: "GetRun", Handler: unaryHandler(getRunMethod, SimulationServiceServer.GetRun)},
		{MethodName: "ListRuns", Handler: unaryHandler(listRunsMethod, SimulationServiceServer.ListRuns)},
		{MethodName: "ListExamples", Handler: unaryHandler(listExamplesMethod, SimulationServiceServer.ListExamples)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "solarsim/v1/simulation.proto",
}

type structMethod func(SimulationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SimulationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SimulationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SimulationServiceClient is the client API.
type SimulationServiceClient interface {
	RunSimulation(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListExamples(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type simulationServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSimulationServiceClient wraps a connection.
func NewSimulationServiceClient(cc grpc.ClientConnInterface) SimulationServiceClient {
	return &simulationServiceClient{cc: cc}
}

func (c *simulationServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *simulationServiceClient) RunSimulation(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, runSimulationMethod, in, opts)
}

func (c *simulationServiceClient) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, getRunMethod, in, opts)
}

func (c *simulationServiceClient) ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, listRunsMethod, in, opts)
}

func (c *simulationServiceClient) ListExamples(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, listExamplesMethod, in, opts)
}
