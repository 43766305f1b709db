package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistry_Dispatch(t *testing.T) {
	registry := NewDefaultRegistry()

	tests := []struct {
		path      string
		supported bool
	}{
		{"notes.txt", true},
		{"README.MD", true},
		{"table.csv", true},
		{"rules.pdf", true},
		{"letter.docx", true},
		{"page.html", true},
		{"virus.exe", false},
		{"Makefile", false},
		{"archive.tar.gz", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.supported, registry.Supports(tt.path))
		})
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	registry := NewDefaultRegistry()

	_, err := registry.Extract(context.Background(), "/tmp/tool.exe")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), ".exe")

	_, err = registry.Extract(context.Background(), "/tmp/Makefile")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRegistry_RegisterCustom(t *testing.T) {
	registry := NewRegistry()
	called := false
	registry.Register(ExtractorFunc(func(ctx context.Context, path string) (*Document, error) {
		called = true
		return &Document{Pages: []Page{{Text: "custom"}}}, nil
	}), "EPUB")

	assert.Equal(t, []string{".epub"}, registry.Extensions())

	doc, err := registry.Extract(context.Background(), "/books/story.epub")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "/books/story.epub", doc.Path)
	assert.Equal(t, "custom", doc.Text())
}

func TestRegistry_CancelledContext(t *testing.T) {
	registry := NewDefaultRegistry()
	path := writeFile(t, "a.txt", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := registry.Extract(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTextExtractor(t *testing.T) {
	path := writeFile(t, "notes.md", "# Goblins\r\n\r\nSmall and green.\r\n")

	doc, err := NewDefaultRegistry().Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, 0, doc.Pages[0].Number)
	assert.Equal(t, "# Goblins\n\nSmall and green.\n", doc.Text())
	assert.False(t, doc.IsEmpty())
}

func TestTextExtractor_MissingFile(t *testing.T) {
	_, err := NewDefaultRegistry().Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCSVExtractor(t *testing.T) {
	path := writeFile(t, "monsters.csv", "name,hp,cr\ngoblin,7,1/4\n\"ancient red dragon\",546,24\n")

	doc, err := NewDefaultRegistry().Extract(context.Background(), path)
	require.NoError(t, err)

	text := doc.Text()
	assert.Contains(t, text, "name")
	assert.Contains(t, text, "ancient red dragon")
	assert.Contains(t, text, "546")
	assert.NotContains(t, text, ",")
	assert.Equal(t, 3, len(splitLines(text)))
}

func TestCSVExtractor_RaggedRows(t *testing.T) {
	path := writeFile(t, "ragged.csv", "a,b,c\n1,2\n3,4,5,6\n")

	doc, err := NewDefaultRegistry().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, doc.Text(), "6")
}

func TestDocconvExtractor_HTML(t *testing.T) {
	path := writeFile(t, "page.html", "<html><body><h1>Bestiary</h1><p>Owlbears are fierce.</p></body></html>")

	doc, err := NewDefaultRegistry().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, doc.Text(), "Owlbears are fierce.")
}

func TestDocument(t *testing.T) {
	doc := &Document{Pages: []Page{{Number: 1, Text: "one"}, {Number: 2, Text: " \n"}}}
	assert.Equal(t, "one\n\n \n", doc.Text())
	assert.False(t, doc.IsEmpty())

	empty := &Document{Pages: []Page{{Text: "  \n\t"}}}
	assert.True(t, empty.IsEmpty())
	assert.True(t, (&Document{}).IsEmpty())
}

func TestSplitPages(t *testing.T) {
	pages := splitPages("plain text")
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].Number)

	pages = splitPages("first\fsecond\f\fFourth")
	require.Len(t, pages, 3)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, 4, pages[2].Number)
	assert.Equal(t, "Fourth", pages[2].Text)
}

func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if r == '\n' {
			if i > start {
				lines = append(lines, text[start:i])
			}
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
