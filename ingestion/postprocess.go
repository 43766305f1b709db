package ingestion

import (
	"context"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/extract"
)

// PostProcessor derives an extra artifact from a document after its chunks
// are stored. A successful run adds Feature() to the source's features.
// Failures are logged and never fail the ingestion run.
type PostProcessor interface {
	Feature() string
	Process(ctx context.Context, source *core.KnowledgeSource, doc *extract.Document) error
}

type postProcessorFunc struct {
	feature string
	fn      func(ctx context.Context, source *core.KnowledgeSource, doc *extract.Document) error
}

// NewPostProcessor adapts a function to the PostProcessor interface.
func NewPostProcessor(feature string, fn func(ctx context.Context, source *core.KnowledgeSource, doc *extract.Document) error) PostProcessor {
	return &postProcessorFunc{feature: feature, fn: fn}
}

func (p *postProcessorFunc) Feature() string {
	return p.feature
}

func (p *postProcessorFunc) Process(ctx context.Context, source *core.KnowledgeSource, doc *extract.Document) error {
	return p.fn(ctx, source, doc)
}
