package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/kbingest/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu      sync.Mutex
	sources []*core.KnowledgeSource
	calls   int
	err     error
}

func (f *fakeLister) List(ctx context.Context) ([]*core.KnowledgeSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*core.KnowledgeSource, len(f.sources))
	for i, src := range f.sources {
		out[i] = src.Clone()
	}
	return out, nil
}

func (f *fakeLister) set(sources ...*core.KnowledgeSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = sources
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func source(id core.ID, status core.Status) *core.KnowledgeSource {
	src := &core.KnowledgeSource{Id: id, SourcePath: "/docs/a.txt", Filename: "a.txt", Status: status}
	if status == core.StatusCompleted {
		src.Progress = core.ProgressComplete
	}
	return src
}

func TestEstimateRemaining(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   core.Status
		started  time.Duration // before now
		progress int
		want     string
	}{
		{"not running", core.StatusCompleted, 10 * time.Second, 100, ""},
		{"pending", core.StatusPending, 0, 0, ""},
		{"too early", core.StatusRunning, time.Second, 25, "Calculating..."},
		{"no progress", core.StatusRunning, time.Minute, 0, "Calculating..."},
		{"half way", core.StatusRunning, 10 * time.Second, 50, "~10s remaining"},
		{"quarter way", core.StatusRunning, 10 * time.Second, 25, "~30s remaining"},
		{"minutes", core.StatusRunning, 2 * time.Minute, 60, "~2 min remaining"},
		{"partial minute rounds up", core.StatusRunning, 30 * time.Second, 25, "~2 min remaining"},
		{"clock skew", core.StatusRunning, -10 * time.Second, 50, "Calculating..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := source(1, tt.status)
			src.Progress = tt.progress
			if tt.started != 0 {
				src.StartedAt = now.Add(-tt.started)
			}
			assert.Equal(t, tt.want, EstimateRemaining(src, now))
		})
	}

	assert.Empty(t, EstimateRemaining(nil, now))
}

func TestPoller_Poll(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	running := source(1, core.StatusRunning)
	running.Progress = 50
	running.StartedAt = now.Add(-10 * time.Second)

	lister := &fakeLister{}
	lister.set(running, source(2, core.StatusCompleted), source(3, core.StatusPending))
	p := New(lister, WithClock(func() time.Time { return now }))

	snap, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Items, 3)
	assert.Equal(t, 2, snap.Active)
	assert.Equal(t, "~10s remaining", snap.Items[0].ETA)
	assert.Empty(t, snap.Items[1].ETA)
	assert.Equal(t, now, snap.At)

	lister.err = errors.New("connection refused")
	_, err = p.Poll(context.Background())
	require.Error(t, err)
}

func TestPoller_PollsWhileActive(t *testing.T) {
	lister := &fakeLister{}
	lister.set(source(1, core.StatusRunning), source(2, core.StatusCompleted))
	p := New(lister, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx, func(*Snapshot) {}) }()

	require.Eventually(t, func() bool { return lister.callCount() >= 5 }, 2*time.Second, time.Millisecond)
}

func TestPoller_StopsWhenIdleUntilTriggered(t *testing.T) {
	lister := &fakeLister{}
	lister.set(source(1, core.StatusCompleted), source(2, core.StatusFailed))
	p := New(lister, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots := make(chan *Snapshot, 16)
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(s *Snapshot) { snapshots <- s })
	}()

	first := <-snapshots
	assert.Zero(t, first.Active)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, lister.callCount(), "an idle poller does not poll again")

	lister.set(source(1, core.StatusCompleted), source(3, core.StatusPending))
	p.Trigger()
	second := <-snapshots
	assert.Equal(t, 1, second.Active)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestPoller_IdleInterval(t *testing.T) {
	lister := &fakeLister{}
	lister.set(source(1, core.StatusCompleted))
	p := New(lister, WithIdleInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx, func(*Snapshot) {}) }()

	require.Eventually(t, func() bool { return lister.callCount() >= 3 }, 2*time.Second, time.Millisecond)
}

func TestPoller_RunUntilIdle(t *testing.T) {
	lister := &fakeLister{}
	lister.set(source(1, core.StatusRunning))
	p := New(lister, WithInterval(2*time.Millisecond))

	var seen int
	go func() {
		time.Sleep(20 * time.Millisecond)
		lister.set(source(1, core.StatusCompleted))
	}()

	snap, err := p.RunUntilIdle(context.Background(), func(*Snapshot) { seen++ })
	require.NoError(t, err)
	assert.Zero(t, snap.Active)
	assert.Equal(t, core.StatusCompleted, snap.Items[0].Source.Status)
	assert.Greater(t, seen, 1)
}

func TestPoller_RunUntilIdleCancelled(t *testing.T) {
	lister := &fakeLister{err: errors.New("unreachable")}
	p := New(lister, WithInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.RunUntilIdle(ctx, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, lister.callCount(), 1, "failed polls are retried")
}

func TestPoller_TriggerNeverBlocks(t *testing.T) {
	p := New(&fakeLister{})
	for i := 0; i < 10; i++ {
		p.Trigger()
	}
}
