package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/kbingest/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultConfig()},
		{name: "no overlap", cfg: Config{ChunkSize: 10}},
		{name: "zero size", cfg: Config{ChunkSize: 0}, wantErr: true},
		{name: "negative overlap", cfg: Config{ChunkSize: 10, ChunkOverlap: -1}, wantErr: true},
		{name: "overlap too large", cfg: Config{ChunkSize: 10, ChunkOverlap: 10}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSplit_ShortDocument(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	doc := &extract.Document{Path: "/docs/a.txt", Pages: []extract.Page{{Text: "A goblin appears."}}}
	chunks, err := c.Split(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "/docs/a.txt", chunks[0].Source)
	assert.Equal(t, "A goblin appears.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Offset)
}

func TestSplit_RespectsChunkSize(t *testing.T) {
	c, err := New(Config{ChunkSize: 100, ChunkOverlap: 20})
	require.NoError(t, err)

	var paragraphs []string
	for i := 0; i < 30; i++ {
		paragraphs = append(paragraphs, "The party rests at the inn and the bard sings a song.")
	}
	text := strings.Join(paragraphs, "\n\n")

	chunks, err := c.Split(&extract.Document{Pages: []extract.Page{{Text: text}}})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	lastOffset := -1
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index, "indexes are sequential")
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), 100)
		assert.NotEmpty(t, strings.TrimSpace(chunk.Text))
		assert.Greater(t, chunk.Offset, lastOffset, "offsets increase")
		lastOffset = chunk.Offset
	}
}

func TestSplit_PagesAndBlankContent(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	doc := &extract.Document{Pages: []extract.Page{
		{Number: 1, Text: "Chapter one."},
		{Number: 2, Text: "   \n\n  "},
		{Number: 3, Text: "Chapter three."},
	}}
	chunks, err := c.Split(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 3, chunks[1].Page)
	assert.Equal(t, 1, chunks[1].Index)

	empty, err := c.Split(&extract.Document{Pages: []extract.Page{{Text: " "}}})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
