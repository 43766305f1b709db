package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runningSource(t *testing.T) *KnowledgeSource {
	t.Helper()
	src := NewKnowledgeSource("/docs/rules.md", "")
	require.NoError(t, src.Start(time.Now()))
	return src
}

func TestLifecycle_HappyPath(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	src := NewKnowledgeSource("/docs/rules.md", "")

	require.NoError(t, src.Start(now))
	assert.Equal(t, StatusRunning, src.Status)
	assert.Equal(t, StepExtracting, src.CurrentStep)
	assert.Equal(t, 0, src.Progress)
	assert.Equal(t, now, src.StartedAt)
	require.NoError(t, ValidateKnowledgeSource(src))

	for _, stage := range []struct {
		step     string
		progress int
	}{
		{StepChunking, ProgressChunking},
		{StepEmbedding, ProgressEmbedding},
		{StepStoring, ProgressStoring},
	} {
		require.NoError(t, src.Advance(stage.step, stage.progress))
		assert.Equal(t, stage.step, src.CurrentStep)
		assert.Equal(t, stage.progress, src.Progress)
		require.NoError(t, ValidateKnowledgeSource(src))
	}

	done := now.Add(5 * time.Second)
	require.NoError(t, src.Complete(done, 12, []string{FeatureIndexed, FeatureIndexed, ""}))
	assert.Equal(t, StatusCompleted, src.Status)
	assert.Equal(t, 100, src.Progress)
	assert.Empty(t, src.CurrentStep)
	assert.Equal(t, done, src.LastIndexedAt)
	assert.Equal(t, 12, src.ChunkCount)
	assert.Equal(t, []string{FeatureIndexed}, src.Features)
	require.NoError(t, ValidateKnowledgeSource(src))
}

func TestFail_KeepsProgress(t *testing.T) {
	src := runningSource(t)
	require.NoError(t, src.Advance(StepEmbedding, ProgressEmbedding))

	require.NoError(t, src.Fail("embedding service unavailable"))
	assert.Equal(t, StatusFailed, src.Status)
	assert.Equal(t, ProgressEmbedding, src.Progress)
	assert.Empty(t, src.CurrentStep)
	assert.Equal(t, "embedding service unavailable", src.ErrorMessage)
	require.NoError(t, ValidateKnowledgeSource(src))
}

func TestFail_EmptyMessage(t *testing.T) {
	src := runningSource(t)
	require.NoError(t, src.Fail(""))
	assert.NotEmpty(t, src.ErrorMessage)
	require.NoError(t, ValidateKnowledgeSource(src))
}

func TestFail_PendingSource(t *testing.T) {
	src := NewKnowledgeSource("/docs/rules.md", "")
	require.NoError(t, src.Fail(InterruptedMessage))
	assert.Equal(t, StatusFailed, src.Status)
	assert.Equal(t, 0, src.Progress)
}

func TestEnqueue_ResetsRun(t *testing.T) {
	indexedAt := time.Now().Add(-time.Hour).UTC()
	src := runningSource(t)
	require.NoError(t, src.Complete(indexedAt, 3, []string{FeatureIndexed}))

	require.NoError(t, src.Enqueue())
	assert.Equal(t, StatusPending, src.Status)
	assert.Equal(t, 0, src.Progress)
	assert.Empty(t, src.ErrorMessage)
	assert.Equal(t, indexedAt, src.LastIndexedAt, "last indexed time survives a new run")
	assert.Equal(t, 3, src.ChunkCount)
	require.NoError(t, ValidateKnowledgeSource(src))

	failed := runningSource(t)
	require.NoError(t, failed.Fail("boom"))
	require.NoError(t, failed.Enqueue())
	assert.Empty(t, failed.ErrorMessage)
	require.NoError(t, ValidateKnowledgeSource(failed))
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		src  func(t *testing.T) *KnowledgeSource
		op   func(src *KnowledgeSource) error
	}{
		{
			name: "start running source",
			src:  runningSource,
			op:   func(src *KnowledgeSource) error { return src.Start(time.Now()) },
		},
		{
			name: "enqueue running source",
			src:  runningSource,
			op:   func(src *KnowledgeSource) error { return src.Enqueue() },
		},
		{
			name: "advance pending source",
			src: func(t *testing.T) *KnowledgeSource {
				return NewKnowledgeSource("/docs/a.txt", "")
			},
			op: func(src *KnowledgeSource) error { return src.Advance(StepChunking, ProgressChunking) },
		},
		{
			name: "complete pending source",
			src: func(t *testing.T) *KnowledgeSource {
				return NewKnowledgeSource("/docs/a.txt", "")
			},
			op: func(src *KnowledgeSource) error { return src.Complete(time.Now(), 1, nil) },
		},
		{
			name: "fail completed source",
			src: func(t *testing.T) *KnowledgeSource {
				src := runningSource(t)
				require.NoError(t, src.Complete(time.Now(), 1, nil))
				return src
			},
			op: func(src *KnowledgeSource) error { return src.Fail("late") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.src(t)
			before := *src
			err := tt.op(src)
			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, before.Status, src.Status)
			assert.Equal(t, before.Progress, src.Progress)
		})
	}
}

func TestAdvance_ProgressRules(t *testing.T) {
	src := runningSource(t)
	require.NoError(t, src.Advance(StepEmbedding, ProgressEmbedding))

	err := src.Advance(StepChunking, ProgressChunking)
	require.ErrorIs(t, err, ErrInvalidProgress, "progress cannot go backwards")

	err = src.Advance(StepStoring, 100)
	require.ErrorIs(t, err, ErrInvalidProgress, "100 is reserved for completion")

	require.NoError(t, src.Advance(StepEmbedding, ProgressEmbedding), "same progress is allowed")
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status   Status
		name     string
		active   bool
		terminal bool
	}{
		{StatusPending, "pending", true, false},
		{StatusRunning, "running", true, false},
		{StatusCompleted, "completed", false, true},
		{StatusFailed, "failed", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.status.String())
			assert.Equal(t, tt.active, tt.status.IsActive())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())

			parsed, err := ParseStatus(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.status, parsed)

			text, err := tt.status.MarshalText()
			require.NoError(t, err)
			var back Status
			require.NoError(t, back.UnmarshalText(text))
			assert.Equal(t, tt.status, back)
		})
	}

	_, err := ParseStatus("paused")
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.False(t, Status(0).IsValid())
	_, err = Status(9).MarshalText()
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "create", ModeCreate.String())
	assert.Equal(t, "refresh", ModeRefresh.String())
	assert.Equal(t, "mode(7)", Mode(7).String())
}
