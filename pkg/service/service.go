// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package service exposes request validation over gRPC, for front ends that
// want to check a VTN request before sending it
package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/opiproject/opi-vtn-coordinator/pkg/registry"
	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
	"github.com/opiproject/opi-vtn-coordinator/pkg/utils"
	"github.com/opiproject/opi-vtn-coordinator/pkg/validator"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

// Server implements RequestValidatorServiceServer
type Server struct {
	reg       *registry.Registry
	validator *validator.Validator
	tracer    trace.Tracer

	mu         sync.Mutex
	Pagination map[string]int
}

// NewServer creates a validation server over a sealed registry
func NewServer(reg *registry.Registry, v *validator.Validator) *Server {
	if reg == nil {
		log.Panic("nil for Registry is not allowed")
	}
	if v == nil {
		log.Panic("nil for Validator is not allowed")
	}
	return &Server{
		reg:        reg,
		validator:  v,
		tracer:     otel.Tracer(""),
		Pagination: make(map[string]int),
	}
}

// NewGRPCServer creates a gRPC server with request logging and tracing
// installed and the validation service registered
func NewGRPCServer(srv RequestValidatorServiceServer, logger log.FieldLogger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			logging.UnaryServerInterceptor(utils.InterceptorLogger(logger),
				logging.WithLogOnEvents(logging.StartCall, logging.FinishCall)),
		),
	)
	s := grpc.NewServer(opts...)
	RegisterRequestValidatorServiceServer(s, srv)
	return s
}

// ValidateRequest validates one REST request.
//
// Request fields: method (string), path (string, e.g. /vtns/vtn1.json) and
// body (string, JSON text, optional). Response fields: valid (bool),
// invalid_field, marker, state, stage and body (the normalized body as JSON
// text, empty when the request had none).
func (s *Server) ValidateRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	// check input correctness
	fields := in.GetFields()
	path := fields["path"].GetStringValue()
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "missing required field: path")
	}
	rawMethod := fields["method"].GetStringValue()
	if rawMethod == "" {
		return nil, status.Error(codes.InvalidArgument, "missing required field: method")
	}
	method, err := schema.ParseMethod(rawMethod)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	var body map[string]any
	if text := fields["body"].GetStringValue(); text != "" {
		if body, err = utils.DecodeObject(strings.NewReader(text)); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "body: %v", err)
		}
	}

	target, err := s.reg.Resolve(path)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "unable to find resource for path %s", path)
	}

	ctx, span := s.tracer.Start(ctx, "ValidateRequest")
	defer span.End()

	res := s.validator.Validate(ctx, target.Schema, target.List, validator.Request{
		Method: method,
		Params: target.Params,
		Body:   body,
	})

	normalized := ""
	if res.NormalizedBody != nil {
		raw, err := json.Marshal(res.NormalizedBody)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encoding normalized body: %v", err)
		}
		normalized = string(raw)
	}
	return structpb.NewStruct(map[string]any{
		"resource":      target.Schema.Type,
		"list":          target.List,
		"valid":         res.Valid,
		"invalid_field": res.InvalidField,
		"marker":        string(res.Marker),
		"state":         res.State.String(),
		"stage":         res.Stage.String(),
		"body":          normalized,
	})
}

// ListResources pages through the registered resource types.
//
// Request fields: page_size (number) and page_token (string), both optional.
// Response fields: resources, a list of {type, singular, collection, methods},
// and next_page_token.
func (s *Server) ListResources(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	size, offset, err := s.extractPagination(int(fields["page_size"].GetNumberValue()), fields["page_token"].GetStringValue())
	if err != nil {
		return nil, err
	}

	types := s.reg.Types()
	log.Printf("Limiting result len(%d) to [%d:%d]", len(types), offset, size)
	page, hasMoreElements := limitPagination(types, offset, size)

	resources := make([]any, 0, len(page))
	for _, t := range page {
		rs, err := s.reg.Lookup(t)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "%v", err)
		}
		resources = append(resources, describe(rs))
	}

	token := ""
	if hasMoreElements {
		token = uuid.New().String()
		s.mu.Lock()
		s.Pagination[token] = offset + size
		s.mu.Unlock()
	}
	return structpb.NewStruct(map[string]any{
		"resources":       resources,
		"next_page_token": token,
	})
}

func describe(rs *schema.ResourceSchema) map[string]any {
	out := map[string]any{"type": rs.Type}
	methods := map[string]any{}
	for name, form := range map[string]*schema.Form{"singular": rs.Singular, "collection": rs.Collection} {
		if form == nil {
			continue
		}
		out[name] = form.Pattern
		var supported []any
		for _, m := range form.SupportedMethods() {
			supported = append(supported, string(m))
		}
		methods[name] = supported
	}
	out["methods"] = methods
	return out
}

// extractPagination computes page size and offset from the request, tokens
// being handed out by a previous ListResources call
func (s *Server) extractPagination(pageSize int, token string) (size, offset int, err error) {
	switch {
	case pageSize < 0:
		return -1, -1, status.Error(codes.InvalidArgument, "negative PageSize is not allowed")
	case pageSize == 0:
		size = defaultPageSize
	case pageSize > maxPageSize:
		size = maxPageSize
	default:
		size = pageSize
	}
	if token != "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		var ok bool
		if offset, ok = s.Pagination[token]; !ok {
			return -1, -1, status.Errorf(codes.NotFound, "unable to find pagination token %s", token)
		}
		log.Printf("Found offset %d from pagination token: %s", offset, token)
	}
	return size, offset, nil
}

func limitPagination[T any](items []T, offset, size int) ([]T, bool) {
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + size
	hasMoreElements := end < len(items)
	if !hasMoreElements {
		end = len(items)
	}
	return items[offset:end], hasMoreElements
}
