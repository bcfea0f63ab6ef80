// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "opi_vtn.v1.RequestValidatorService"

// Full method names
const (
	ValidateRequestMethod = "/" + ServiceName + "/ValidateRequest"
	ListResourcesMethod   = "/" + ServiceName + "/ListResources"
)

// RequestValidatorServiceServer is the server API of the request validator.
// Messages are google.protobuf.Struct values, see ValidateRequest and
// ListResources for their fields.
type RequestValidatorServiceServer interface {
	ValidateRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListResources(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRequestValidatorServiceServer registers srv on s
func RegisterRequestValidatorServiceServer(s grpc.ServiceRegistrar, srv RequestValidatorServiceServer) {
	s.RegisterService(&requestValidatorServiceDesc, srv)
}

func validateRequestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RequestValidatorServiceServer).ValidateRequest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateRequestMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RequestValidatorServiceServer).ValidateRequest(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listResourcesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RequestValidatorServiceServer).ListResources(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListResourcesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RequestValidatorServiceServer).ListResources(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var requestValidatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RequestValidatorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ValidateRequest", Handler: validateRequestHandler},
		{MethodName: "ListResources", Handler: listResourcesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "opi_vtn/v1/validator.proto",
}

// RequestValidatorServiceClient is the client API of the request validator
type RequestValidatorServiceClient interface {
	ValidateRequest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListResources(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type requestValidatorServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRequestValidatorServiceClient creates a client on cc
func NewRequestValidatorServiceClient(cc grpc.ClientConnInterface) RequestValidatorServiceClient {
	return &requestValidatorServiceClient{cc}
}

func (c *requestValidatorServiceClient) ValidateRequest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ValidateRequestMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *requestValidatorServiceClient) ListResources(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListResourcesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
