// Package rpc declares the timesheet.approvals.v1.ApprovalService gRPC
// contract. Messages are google.protobuf.Struct values carrying the same
// JSON shapes as the HTTP API.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "timesheet.approvals.v1.ApprovalService"

// Method names.
const (
	MethodSubmitForApproval = "SubmitForApproval"
	MethodApproveViaLink    = "ApproveViaLink"
	MethodRejectViaLink     = "RejectViaLink"
	MethodWithdraw          = "Withdraw"
	MethodGetApprovalStatus = "GetApprovalStatus"
	MethodListApprovals     = "ListApprovals"
)

// UserIDMetadataKey is the incoming metadata key naming the caller.
const UserIDMetadataKey = "x-user-id"

// FullMethod returns the /service/method path of name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ApprovalServiceServer is implemented by the gRPC handler.
type ApprovalServiceServer interface {
	SubmitForApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApproveViaLink(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectViaLink(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Withdraw(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetApprovalStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ApprovalServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ApprovalServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ApprovalServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes ApprovalService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ApprovalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method(MethodSubmitForApproval, ApprovalServiceServer.SubmitForApproval),
		method(MethodApproveViaLink, ApprovalServiceServer.ApproveViaLink),
		method(MethodRejectViaLink, ApprovalServiceServer.RejectViaLink),
		method(MethodWithdraw, ApprovalServiceServer.Withdraw),
		method(MethodGetApprovalStatus, ApprovalServiceServer.GetApprovalStatus),
		method(MethodListApprovals, ApprovalServiceServer.ListApprovals),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timesheet/approvals/v1/approvals.proto",
}

// RegisterApprovalServiceServer registers srv on s.
func RegisterApprovalServiceServer(s grpc.ServiceRegistrar, srv ApprovalServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ApprovalServiceClient invokes ApprovalService methods.
type ApprovalServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewApprovalServiceClient(cc grpc.ClientConnInterface) *ApprovalServiceClient {
	return &ApprovalServiceClient{cc: cc}
}

// Call invokes the named method with in.
func (c *ApprovalServiceClient) Call(ctx context.Context, name string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode converts v to a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode %T: not a JSON object: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from s through its JSON form.
func Decode(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return json.Unmarshal(raw, v)
}
