package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/harunnryd/roundtable/pkg/llm"

// TracedGenerator records one span per generation request.
type TracedGenerator struct {
	inner Generator
}

func NewTracedGenerator(inner Generator) *TracedGenerator {
	return &TracedGenerator{inner: inner}
}

func (g *TracedGenerator) Name() string { return g.inner.Name() }

func (g *TracedGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", g.inner.Name()),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
	)
	resp, err := g.inner.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(resp.Text)))
	return resp, nil
}
