// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func TestNewTracerProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := NewTracerProvider("opi-vtn-coordinator", "v0.1.0", sdktrace.WithSpanProcessor(recorder))
	defer func() { require.NoError(t, tp.Shutdown(context.Background())) }()

	_, span := tp.Tracer("test").Start(context.Background(), "Validate")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Validate", spans[0].Name())

	attrs := spans[0].Resource().Attributes()
	assert.Contains(t, attrs, semconv.ServiceNameKey.String("opi-vtn-coordinator"))
	assert.Contains(t, attrs, semconv.ServiceVersionKey.String("v0.1.0"))
}
