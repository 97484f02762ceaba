// Package rpc describes the farm.v1.Farm gRPC service shared by the
// controller and the CLI transport.
//
// Messages are google.protobuf.Struct values carrying the same JSON objects
// as the REST gateway, so the service needs no generated code:
//
//	in, _ := rpc.Encode(map[string]any{"client": "CL1", "prefix": "I-1-"})
//	out := new(structpb.Struct)
//	err := conn.Invoke(ctx, rpc.FullMethod(rpc.MethodCount), in, out)
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "farm.v1.Farm"

// Unary method names.
const (
	MethodHealth      = "Health"
	MethodSubmit      = "Submit"
	MethodInvoke      = "Invoke"
	MethodCount       = "Count"
	MethodList        = "List"
	MethodCancel      = "Cancel"
	MethodCompleted   = "Completed"
	MethodGetClient   = "GetClient"
	MethodSetPriority = "SetPriority"
	MethodStats       = "Stats"
	MethodPoll        = "Poll"
	MethodComplete    = "Complete"
)

// MethodWork is the bidirectional processor stream.
const MethodWork = "Work"

// Work stream message types.
const (
	// WorkHello opens the stream with the processor id and attributes.
	WorkHello = "hello"
	// WorkReady reports the processor idle; the controller answers with
	// one WorkAssignment.
	WorkReady      = "ready"
	WorkAssignment = "assignment"
	// WorkComplete reports a result; the controller answers with WorkAck.
	WorkComplete = "complete"
	WorkAck      = "ack"
)

// FullMethod returns the invoke path of a method.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// UnaryFunc is the shape of every unary method.
type UnaryFunc func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// WorkStream is the server side of the Work stream.
type WorkStream = grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]

// WorkClient is the client side of the Work stream.
type WorkClient = grpc.BidiStreamingClient[structpb.Struct, structpb.Struct]

// FarmServer is implemented by the controller.
type FarmServer interface {
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Invoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Count(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Cancel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Completed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetClient(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetPriority(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Poll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Complete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Work(WorkStream) error
}

func unary(name string, pick func(FarmServer) UnaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			fn := pick(srv.(FarmServer))
			if interceptor == nil {
				return fn(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc registers a FarmServer with a *grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FarmServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodHealth, func(s FarmServer) UnaryFunc { return s.Health }),
		unary(MethodSubmit, func(s FarmServer) UnaryFunc { return s.Submit }),
		unary(MethodInvoke, func(s FarmServer) UnaryFunc { return s.Invoke }),
		unary(MethodCount, func(s FarmServer) UnaryFunc { return s.Count }),
		unary(MethodList, func(s FarmServer) UnaryFunc { return s.List }),
		unary(MethodCancel, func(s FarmServer) UnaryFunc { return s.Cancel }),
		unary(MethodCompleted, func(s FarmServer) UnaryFunc { return s.Completed }),
		unary(MethodGetClient, func(s FarmServer) UnaryFunc { return s.GetClient }),
		unary(MethodSetPriority, func(s FarmServer) UnaryFunc { return s.SetPriority }),
		unary(MethodStats, func(s FarmServer) UnaryFunc { return s.Stats }),
		unary(MethodPoll, func(s FarmServer) UnaryFunc { return s.Poll }),
		unary(MethodComplete, func(s FarmServer) UnaryFunc { return s.Complete }),
	},
	Streams: []grpc.StreamDesc{{
		StreamName: MethodWork,
		Handler: func(srv any, stream grpc.ServerStream) error {
			return srv.(FarmServer).Work(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
		},
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "farm/v1/farm.proto",
}

// Register adds srv to s.
func Register(s grpc.ServiceRegistrar, srv FarmServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// OpenWork starts the Work stream on conn.
func OpenWork(ctx context.Context, conn grpc.ClientConnInterface) (WorkClient, error) {
	cs, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod(MethodWork))
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}, nil
}

// Encode converts v, which must marshal to a JSON object, to a Struct.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// Decode fills v from s through its JSON form. A nil s leaves v untouched.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// DecodeRaw returns the JSON form of s.
func DecodeRaw(s *structpb.Struct) (json.RawMessage, error) {
	if s == nil {
		return json.RawMessage("{}"), nil
	}
	return protojson.Marshal(s)
}
