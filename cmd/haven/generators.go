package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
)

// The generators below are deliberately simple stand-ins so the binary runs
// end to end without a model backend. Production deployments inject real
// generators through the assistant options.

type localGenerator struct{}

var _ ports.Generator = (*localGenerator)(nil)

func newLocalGenerator() *localGenerator { return &localGenerator{} }

func (g *localGenerator) Name() string { return "local_fast" }

func (g *localGenerator) Generate(ctx context.Context, fr *domain.ContextFrame, rawText string) (*domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := "Got it."
	if len(fr.Items) > 0 {
		text = fmt.Sprintf("Got it. One thing on your radar: %s", firstLine(fr.Items[0].Content))
	}
	return &domain.Result{ResponseText: text}, nil
}

type reflectiveGenerator struct{}

var _ ports.Generator = (*reflectiveGenerator)(nil)

func newReflectiveGenerator() *reflectiveGenerator { return &reflectiveGenerator{} }

func (g *reflectiveGenerator) Name() string { return "local_deep" }

func (g *reflectiveGenerator) Generate(ctx context.Context, fr *domain.ContextFrame, rawText string) (*domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString("Let's take this step by step.")
	for i, item := range fr.Items {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, " Keep in mind: %s.", firstLine(item.Content))
	}
	return &domain.Result{ResponseText: b.String()}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
