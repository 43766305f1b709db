package extract

import (
	"context"
	"os"
	"strings"
)

// TextExtractor reads UTF-8 text and markdown files as a single page.
type TextExtractor struct{}

// NewTextExtractor reads plain text and Markdown as a single page.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.ToValidUTF8(string(data), "�")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return &Document{Pages: []Page{{Text: text}}}, nil
}
