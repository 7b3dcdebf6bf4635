package tracer

import (
	"context"
	"sync"

	"github.com/astro-web3/oauthgate/pkg/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	defaultTracer trace.Tracer
	initOnce      sync.Once
	errInit       error

	noopTracer = noop.NewTracerProvider().Tracer("noop")
)

// Init configures the process-wide tracer once. Later calls return the
// result of the first.
func Init(cfg otel.Config) error {
	initOnce.Do(func() {
		t, err := otel.InitTracer(cfg)
		if err != nil {
			errInit = err
			return
		}
		defaultTracer = t
	})

	return errInit
}

// Start opens a span on the process tracer, or a noop span before Init.
func Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if defaultTracer == nil {
		return noopTracer.Start(ctx, spanName, opts...)
	}
	return defaultTracer.Start(ctx, spanName, opts...)
}
