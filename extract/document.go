package extract

import (
	"strings"
)

// Page is a run of text from one page of a document.
// Number is 1-based, or 0 when the format has no pages.
type Page struct {
	Number int
	Text   string
}

// Document is the text extracted from one file.
type Document struct {
	Path  string
	Pages []Page
}

// Text joins all pages with blank lines.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// IsEmpty reports whether the document holds nothing but whitespace.
func (d *Document) IsEmpty() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

// splitPages splits text on form feeds, which converters emit between pages.
// Text without form feeds becomes a single unnumbered page.
func splitPages(text string) []Page {
	if !strings.Contains(text, "\f") {
		return []Page{{Number: 0, Text: text}}
	}
	raw := strings.Split(text, "\f")
	pages := make([]Page, 0, len(raw))
	for i, t := range raw {
		if strings.TrimSpace(t) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: t})
	}
	return pages
}
