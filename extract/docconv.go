package extract

import (
	"context"
	"fmt"
	"os"

	"code.sajari.com/docconv"
)

// DocconvExtractor converts office, PDF and HTML documents with docconv.
type DocconvExtractor struct {
	useReadability bool
}

// NewDocconvExtractor creates a docconv-backed extractor. useReadability
// strips navigation and boilerplate from HTML.
func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := docconv.Convert(f, docconv.MimeTypeByExtension(path), e.useReadability)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Document{Pages: splitPages(res.Body)}, nil
}
