// Package supervisorv1 describes the moldock.supervisor.v1.Supervisor grpc
// service. Messages are protobuf well known types; structured bodies travel as
// google.protobuf.Struct holding the JSON form of the Go types.
package supervisorv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified grpc service name
const ServiceName = "moldock.supervisor.v1.Supervisor"

// method names
const (
	MethodRun        = "Run"
	MethodLaunch     = "Launch"
	MethodStatus     = "Status"
	MethodOutput     = "Output"
	MethodProgress   = "Progress"
	MethodProjects   = "Projects"
	MethodReadText   = "ReadText"
	MethodCSVPreview = "CSVPreview"
)

// FullMethod returns the grpc path of method, e.g.
// "/moldock.supervisor.v1.Supervisor/Launch"
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// SupervisorServer is the server API for the Supervisor service
type SupervisorServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Launch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error)
	Output(*wrapperspb.UInt64Value, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
	Progress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Projects(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ReadText(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	CSVPreview(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedSupervisorServer can be embedded to have forward compatible
// implementations
type UnimplementedSupervisorServer struct{}

func (UnimplementedSupervisorServer) Run(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Run not implemented")
}

func (UnimplementedSupervisorServer) Launch(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Launch not implemented")
}

func (UnimplementedSupervisorServer) Status(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Status not implemented")
}

func (UnimplementedSupervisorServer) Output(*wrapperspb.UInt64Value, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	return status.Errorf(codes.Unimplemented, "method Output not implemented")
}

func (UnimplementedSupervisorServer) Progress(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Progress not implemented")
}

func (UnimplementedSupervisorServer) Projects(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Projects not implemented")
}

func (UnimplementedSupervisorServer) ReadText(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ReadText not implemented")
}

func (UnimplementedSupervisorServer) CSVPreview(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CSVPreview not implemented")
}

// RegisterSupervisorServer registers srv with s
func RegisterSupervisorServer(s grpc.ServiceRegistrar, srv SupervisorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds the method description of a unary rpc that calls fn
func unary[Req, Resp any](method string, fn func(SupervisorServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			s := srv.(SupervisorServer)
			if interceptor == nil {
				return fn(s, ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(method),
			}

			handler := func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(*Req))
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}

func outputHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.UInt64Value)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(SupervisorServer).Output(in, &grpc.GenericServerStream[wrapperspb.UInt64Value, wrapperspb.BytesValue]{
		ServerStream: stream,
	})
}

// ServiceDesc is the grpc.ServiceDesc for the Supervisor service
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SupervisorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRun, SupervisorServer.Run),
		unary(MethodLaunch, SupervisorServer.Launch),
		unary(MethodStatus, SupervisorServer.Status),
		unary(MethodProgress, SupervisorServer.Progress),
		unary(MethodProjects, SupervisorServer.Projects),
		unary(MethodReadText, SupervisorServer.ReadText),
		unary(MethodCSVPreview, SupervisorServer.CSVPreview),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    MethodOutput,
		Handler:       outputHandler,
		ServerStreams: true,
	}},
}
