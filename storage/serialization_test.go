package storage

import (
	"testing"
	"time"

	"github.com/poiesic/kbingest/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"hash-like ID", core.ID(0x9e3779b97f4a7c15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.Len(t, data, 8)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestMarshalID_SortsNumerically(t *testing.T) {
	assert.Less(t, string(MarshalID(9)), string(MarshalID(10)))
	assert.Less(t, string(MarshalID(255)), string(MarshalID(256)))
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncatedData)
	require.ErrorIs(t, err, ErrSerializationFailed)
}

func TestKnowledgeSourceRoundTrip(t *testing.T) {
	started := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	source := &core.KnowledgeSource{
		Id:            7,
		SourcePath:    "/srv/docs/bestiary.pdf",
		Filename:      "bestiary.pdf",
		Description:   "monsters",
		Status:        core.StatusFailed,
		Progress:      60,
		StartedAt:     started,
		ErrorMessage:  "embedding failed",
		ChunkCount:    41,
		Features:      []string{core.FeatureIndexed},
		ContentHash:   "abc",
		InsertedAt:    started,
		UpdatedAt:     started.Add(time.Minute),
		LastIndexedAt: time.Time{},
	}

	data, err := MarshalKnowledgeSource(source)
	require.NoError(t, err)

	decoded, err := UnmarshalKnowledgeSource(data)
	require.NoError(t, err)
	assert.Equal(t, source.Id, decoded.Id)
	assert.Equal(t, source.SourcePath, decoded.SourcePath)
	assert.Equal(t, source.Status, decoded.Status)
	assert.Equal(t, source.Progress, decoded.Progress)
	assert.Equal(t, source.ErrorMessage, decoded.ErrorMessage)
	assert.Equal(t, source.Features, decoded.Features)
	assert.True(t, source.StartedAt.Equal(decoded.StartedAt))
	assert.True(t, decoded.LastIndexedAt.IsZero())
}

func TestChunkRoundTrip(t *testing.T) {
	chunk := &core.Chunk{
		SourceId: 3,
		Index:    12,
		Source:   "/srv/docs/notes.md",
		Page:     2,
		Offset:   800,
		Text:     "The dragon sleeps under the mountain.",
		Vector:   []float32{0.25, -0.5, 1},
	}

	data, err := MarshalChunk(chunk)
	require.NoError(t, err)

	decoded, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, chunk, decoded)
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := UnmarshalKnowledgeSource([]byte{0xff, 0x00})
	require.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalChunk([]byte{0xff, 0x00})
	require.ErrorIs(t, err, ErrSerializationFailed)
}
