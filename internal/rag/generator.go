package rag

import (
	"context"
	"strings"
)

// GenerationPort invokes the model backend. Implemented by llm.Generator.
type GenerationPort interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Generator assembles the final prompt and invokes the port. Prompt order
// is fixed: system instruction, reference context, then question.
type Generator struct {
	port         GenerationPort
	systemPrompt string
}

func NewGenerator(port GenerationPort, systemPrompt string) *Generator {
	return &Generator{port: port, systemPrompt: systemPrompt}
}

// Answer returns the model's raw answer to the query given the retrieved
// context block. Backend failures surface as llm.ErrUnavailable.
func (g *Generator) Answer(ctx context.Context, query, contextBlock string) (string, error) {
	var b strings.Builder
	b.WriteString("Reference data:\n")
	if contextBlock == "" {
		b.WriteString("(no matching market data was found)\n")
	} else {
		b.WriteString(contextBlock)
	}
	b.WriteString("\nQuestion:\n")
	b.WriteString(query)
	b.WriteString("\n\nAnswer using only the reference data above.")

	return g.port.Complete(ctx, g.systemPrompt, b.String())
}
