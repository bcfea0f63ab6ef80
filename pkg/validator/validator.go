// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package validator checks REST requests against resource schemas
package validator

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opiproject/opi-vtn-coordinator/pkg/schema"
)

// ErrNilSchema is returned by ValidateFor when a lookup yields no schema
var ErrNilSchema = errors.New("nil resource schema")

// Lookuper finds the schema of a resource type
type Lookuper interface {
	Lookup(resourceType string) (*schema.ResourceSchema, error)
}

// Observer is told about every validation, e.g. to export metrics
type Observer interface {
	Observe(resourceType string, method schema.Method, result Result, elapsed time.Duration)
}

// Option configures a Validator
type Option func(*Validator)

// WithTracer sets the tracer used for validation spans
func WithTracer(tracer trace.Tracer) Option {
	return func(v *Validator) {
		v.tracer = tracer
	}
}

// WithLogger sets the logger rejections are reported to
func WithLogger(logger log.FieldLogger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithObserver registers an observer of validation outcomes
func WithObserver(o Observer) Option {
	return func(v *Validator) {
		v.observers = append(v.observers, o)
	}
}

// Validator runs requests through the validation state machine.
// It keeps no per request state and is safe for concurrent use.
type Validator struct {
	tracer    trace.Tracer
	logger    log.FieldLogger
	observers []Observer
}

// New creates a Validator
func New(opts ...Option) *Validator {
	v := &Validator{
		tracer: otel.Tracer(""),
		logger: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateFor looks the resource type up and validates req against its schema.
// Unknown resource types are configuration errors, not results.
func (v *Validator) ValidateFor(ctx context.Context, reg Lookuper, resourceType string, list bool, req Request) (Result, error) {
	s, err := reg.Lookup(resourceType)
	if err != nil {
		return Result{}, err
	}
	if s == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNilSchema, resourceType)
	}
	return v.Validate(ctx, s, list, req), nil
}

// Validate walks START, PATH_VALIDATED, BODY_VALIDATED and ends in ACCEPT or
// REJECT. The first failing check ends the walk and names the failing field.
func (v *Validator) Validate(ctx context.Context, s *schema.ResourceSchema, list bool, req Request) Result {
	start := time.Now()
	resourceType := ""
	if s != nil {
		resourceType = s.Type
	}
	_, span := v.tracer.Start(ctx, "Validate", trace.WithAttributes(
		attribute.String("vtn.resource", resourceType),
		attribute.String("vtn.method", string(req.Method)),
		attribute.Bool("vtn.list", list),
	))
	defer span.End()

	res := run(s, list, req)

	span.SetAttributes(
		attribute.String("vtn.state", res.State.String()),
		attribute.String("vtn.stage", res.Stage.String()),
	)
	if !res.Valid {
		span.SetStatus(codes.Error, string(res.Marker))
		span.SetAttributes(attribute.String("vtn.invalid_field", res.InvalidField))
		v.logger.WithFields(log.Fields{
			"resource": resourceType,
			"method":   req.Method,
			"list":     list,
			"stage":    res.Stage,
			"field":    res.InvalidField,
		}).Debugf("request rejected: %s", res.Marker)
	}
	elapsed := time.Since(start)
	for _, o := range v.observers {
		o.Observe(resourceType, req.Method, res, elapsed)
	}
	return res
}

func run(s *schema.ResourceSchema, list bool, req Request) Result {
	res := Result{State: StateStart, Stage: StateStart}

	var form *schema.Form
	if s != nil {
		form = s.Form(list)
	}
	if form == nil {
		return reject(res, MarkerIncorrectMethodInvocation, "")
	}

	if ok, field := ValidatePath(form, req.Params); !ok {
		return reject(res, MarkerValidationError, field)
	}
	res.State, res.Stage = StatePathValidated, StatePathValidated

	spec, ok := form.Body(req.Method)
	if !ok {
		return reject(res, MarkerIncorrectMethodInvocation, "")
	}
	res.NormalizedBody = Normalize(req.Body, spec, req.Method, list)
	if ok, field := ValidateBody(spec, req.Method, list, res.NormalizedBody); !ok {
		return reject(res, MarkerValidationError, field)
	}
	res.State, res.Stage = StateBodyValidated, StateBodyValidated

	res.State = StateAccept
	res.Valid = true
	return res
}

func reject(res Result, marker Marker, field string) Result {
	res.Valid = false
	res.State = StateReject
	res.Marker = marker
	res.InvalidField = field
	return res
}
