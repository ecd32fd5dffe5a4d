// Package api provides the gRPC MetadataSync service.
//
// Messages are google.protobuf.Struct values, so the service needs no
// generated stubs; ServiceDesc below plays the role of the generated
// registration code.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "metasync.v1.MetadataSync"

// Method names.
const (
	MethodSaveDocument  = "SaveDocument"
	MethodApplyMapping  = "ApplyMapping"
	MethodReadMetadata  = "ReadMetadata"
	MethodWriteMetadata = "WriteMetadata"
	MethodPlan          = "Plan"
)

// FullMethod returns the "/service/method" path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// MetadataSyncServer is the server API for the MetadataSync service.
type MetadataSyncServer interface {
	SaveDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyMapping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReadMetadata(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WriteMetadata(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Plan(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(MetadataSyncServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MetadataSyncServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MetadataSyncServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the MetadataSync service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MetadataSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodSaveDocument, Handler: unaryHandler(MethodSaveDocument, MetadataSyncServer.SaveDocument)},
		{MethodName: MethodApplyMapping, Handler: unaryHandler(MethodApplyMapping, MetadataSyncServer.ApplyMapping)},
		{MethodName: MethodReadMetadata, Handler: unaryHandler(MethodReadMetadata, MetadataSyncServer.ReadMetadata)},
		{MethodName: MethodWriteMetadata, Handler: unaryHandler(MethodWriteMetadata, MetadataSyncServer.WriteMetadata)},
		{MethodName: MethodPlan, Handler: unaryHandler(MethodPlan, MetadataSyncServer.Plan)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "metasync/v1/metadata_sync.proto",
}

// RegisterMetadataSyncServer registers srv on s.
func RegisterMetadataSyncServer(s grpc.ServiceRegistrar, srv MetadataSyncServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is a MetadataSync client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with in.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CallMap converts in to a Struct, invokes method and returns the reply as
// a map.
func (c *Client) CallMap(ctx context.Context, method string, in map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out, err := c.Call(ctx, method, req, opts...)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
