// Copyright 2025 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package tracing is a thin wrapper around OpenTelemetry so that the
// simulation can record spans without being concerned with exporter
// setup.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider hands out tracers and flushes them on shutdown.
type Provider interface {
	trace.TracerProvider
	Shutdown(ctx context.Context) error
}

// NewWriterProvider constructs a Provider that writes spans to w using
// the stdout exporter.
func NewWriterProvider(serviceName, serviceVersion string, w io.Writer) (Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	return NewExporterProvider(serviceName, serviceVersion, exporter)
}

// NewExporterProvider constructs a Provider using the supplied
// SpanExporter. This allows callers to integrate with any exporter
// supported by the OpenTelemetry SDK.
func NewExporterProvider(
	serviceName, serviceVersion string, exporter sdktrace.SpanExporter,
) (Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	), nil
}

// NoopProvider returns a Provider that records nothing.
func NoopProvider() Provider {
	return noopProvider{noop.NewTracerProvider()}
}

type noopProvider struct {
	noop.TracerProvider
}

func (noopProvider) Shutdown(context.Context) error { return nil }

// End records the outcome of the span and ends it. A nil error records
// an OK status.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
