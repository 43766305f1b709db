package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/kbingest/ai/mock"
	"github.com/poiesic/kbingest/chunker"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/poller"
	"github.com/poiesic/kbingest/search"
	"github.com/poiesic/kbingest/storage"
	"github.com/poiesic/kbingest/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rules = `Initiative is rolled at the start of combat.

Each creature gets one action, one bonus action and one reaction per round.

Opportunity attacks are triggered when a creature leaves your reach.`

type testEnv struct {
	service *ingestion.Service
	client  *Client
	server  *httptest.Server
}

func newTestEnv(t *testing.T, start bool) *testEnv {
	t.Helper()
	registry, chunks, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics, err := ingestion.NewMetrics(reg)
	require.NoError(t, err)

	cfg := ingestion.DefaultConfig()
	cfg.Chunking = chunker.Config{ChunkSize: 80, ChunkOverlap: 10}
	cfg.Retry = ingestion.RetryPolicy{MaxAttempts: 1}
	embedder := mock.NewMockEmbedder()
	service, err := ingestion.NewService(registry, chunks, embedder,
		ingestion.WithConfig(cfg), ingestion.WithMetrics(metrics))
	require.NoError(t, err)
	if start {
		require.NoError(t, service.Start(context.Background()))
	}

	searcher, err := search.NewSearcher(chunks, embedder)
	require.NoError(t, err)

	srv := NewServer("", service, searcher, WithGatherer(reg))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = service.Close()
		chunks.Close()
		registry.Close()
		backend.Close()
	})
	return &testEnv{service: service, client: NewClient(ts.URL), server: ts}
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func waitCompleted(t *testing.T, c *Client, id core.ID) *SourceView {
	t.Helper()
	var view *SourceView
	require.Eventually(t, func() bool {
		var err error
		view, err = c.Get(context.Background(), id)
		require.NoError(t, err)
		return view.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, core.StatusCompleted, view.Status, view.ErrorMessage)
	return view
}

func TestServer_SubmitAndList(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	submitted, err := env.client.Submit(ctx, writeSource(t, "rules.md", rules), "combat rules")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, submitted.Status)
	assert.Equal(t, "rules.md", submitted.Filename)
	assert.Empty(t, submitted.Features)

	done := waitCompleted(t, env.client, submitted.Id)
	assert.Equal(t, []string{core.FeatureIndexed}, done.Features)
	assert.Equal(t, "combat rules", done.Description)
	assert.Greater(t, done.ChunkCount, 0)

	views, err := env.client.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, submitted.Id, views[0].Id)
	assert.Empty(t, views[0].ETA)

	stats, err := env.client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, done.ChunkCount, stats.ChunkCount)
}

func TestServer_SubmitErrors(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	_, err := env.client.Submit(ctx, filepath.Join(t.TempDir(), "missing.pdf"), "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "file not found")

	_, err = env.client.Submit(ctx, writeSource(t, "tool.exe", "MZ"), "")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "unsupported file type")

	resp, err := http.Post(env.server.URL+"/api/v1/knowledge", "application/json", strings.NewReader(`{"path": 7}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := fmt.Sprintf(`{"path": %q, "id": 42}`, writeSource(t, "notes.txt", "Kobolds worship dragons."))
	resp, err = http.Post(env.server.URL+"/api/v1/knowledge", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "IDs are assigned by the server")
}

func TestServer_NotFoundAndBadID(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	_, err := env.client.Get(ctx, 404)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, env.client.Delete(ctx, 404), storage.ErrNotFound)

	resp, err := http.Get(env.server.URL + "/api/v1/knowledge/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_RefreshConflict(t *testing.T) {
	// Not started, so the submitted source stays Pending.
	env := newTestEnv(t, false)
	ctx := context.Background()

	submitted, err := env.client.Submit(ctx, writeSource(t, "rules.md", rules), "")
	require.NoError(t, err)

	_, err = env.client.Refresh(ctx, submitted.Id)
	require.ErrorIs(t, err, ingestion.ErrConflict)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	require.NotNil(t, apiErr.Source)
	assert.Equal(t, core.StatusPending, apiErr.Source.Status)

	bulk, err := env.client.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, bulk.Queued)
	assert.Equal(t, []core.ID{submitted.Id}, bulk.Skipped)
}

func TestServer_RefreshAndDelete(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	submitted, err := env.client.Submit(ctx, writeSource(t, "rules.md", rules), "")
	require.NoError(t, err)
	waitCompleted(t, env.client, submitted.Id)

	require.Eventually(t, func() bool {
		_, err := env.client.Refresh(ctx, submitted.Id)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "refresh is accepted once the first run has finished")
	waitCompleted(t, env.client, submitted.Id)

	require.NoError(t, env.client.Delete(ctx, submitted.Id))
	_, err = env.client.Get(ctx, submitted.Id)
	require.ErrorIs(t, err, storage.ErrNotFound)

	stats, err := env.client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &core.Stats{}, stats)
}

func TestServer_Search(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	submitted, err := env.client.Submit(ctx, writeSource(t, "rules.md", rules), "")
	require.NoError(t, err)
	waitCompleted(t, env.client, submitted.Id)

	results, err := env.client.Search(ctx, SearchRequest{Query: "Opportunity attacks are triggered when a creature leaves your reach.", TopK: 2})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
	assert.Contains(t, results[0].Chunk.Text, "Opportunity attacks")
	assert.Equal(t, submitted.Id, results[0].Chunk.SourceId)

	_, err = env.client.Search(ctx, SearchRequest{Query: " "})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, true)

	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = env.client.Submit(context.Background(), writeSource(t, "rules.md", rules), "")
	require.NoError(t, err)

	resp, err = http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := new(bytes.Buffer)
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `kbingest_jobs_submitted_total{mode="create"} 1`)
}

func TestClient_FollowsWithPoller(t *testing.T) {
	env := newTestEnv(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, name := range []string{"a.md", "b.txt"} {
		_, err := env.client.Submit(ctx, writeSource(t, name, rules), "")
		require.NoError(t, err)
	}

	p := poller.New(env.client, poller.WithInterval(10*time.Millisecond))
	snap, err := p.RunUntilIdle(ctx, nil)
	require.NoError(t, err)
	require.Len(t, snap.Items, 2)
	for _, item := range snap.Items {
		assert.Equal(t, core.StatusCompleted, item.Source.Status)
		assert.Equal(t, []string{core.FeatureIndexed}, item.Source.Features)
	}
}

// stubService returns canned answers for deterministic handler tests.
type stubService struct {
	sources []*core.KnowledgeSource
	err     error
}

func (s *stubService) Submit(ctx context.Context, path string, opts ...ingestion.SubmitOption) (*core.KnowledgeSource, error) {
	return nil, s.err
}

func (s *stubService) Refresh(ctx context.Context, id core.ID) (*core.KnowledgeSource, error) {
	return nil, s.err
}

func (s *stubService) RefreshAll(ctx context.Context) ([]core.ID, []core.ID, error) {
	return nil, nil, s.err
}

func (s *stubService) Delete(ctx context.Context, id core.ID) error {
	return s.err
}

func (s *stubService) Get(ctx context.Context, id core.ID) (*core.KnowledgeSource, error) {
	for _, src := range s.sources {
		if src.Id == id {
			return src, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *stubService) List(ctx context.Context) ([]*core.KnowledgeSource, error) {
	return s.sources, s.err
}

func (s *stubService) Stats(ctx context.Context) (*core.Stats, error) {
	return &core.Stats{DocumentCount: len(s.sources)}, s.err
}

func TestServer_ListShowsETAAndHidesFeatures(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	running := &core.KnowledgeSource{
		Id: 1, SourcePath: "/docs/a.pdf", Filename: "a.pdf",
		Status: core.StatusRunning, Progress: 50, CurrentStep: core.StepEmbedding,
		StartedAt: now.Add(-10 * time.Second),
		Features:  []string{core.FeatureIndexed, "template-extracted"},
	}
	failed := &core.KnowledgeSource{
		Id: 2, SourcePath: "/docs/b.exe", Filename: "b.exe",
		Status: core.StatusFailed, ErrorMessage: "Unsupported file type: .exe",
	}
	srv := NewServer("", &stubService{sources: []*core.KnowledgeSource{running, failed}}, nil,
		WithClock(func() time.Time { return now }))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	views, err := NewClient(ts.URL).Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, "~10s remaining", views[0].ETA)
	assert.Empty(t, views[0].Features)
	assert.Equal(t, core.StepEmbedding, views[0].CurrentStep)

	assert.Empty(t, views[1].ETA)
	assert.Equal(t, "Unsupported file type: .exe", views[1].ErrorMessage)
	assert.Equal(t, []string{}, views[1].Features)

	view, err := NewClient(ts.URL).Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "~10s remaining", view.ETA)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ingestion.ErrQueueFull, http.StatusServiceUnavailable},
		{ingestion.ErrQueueClosed, http.StatusServiceUnavailable},
		{ingestion.ErrConflict, http.StatusConflict},
		{storage.ErrNotFound, http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			srv := NewServer("", &stubService{err: tt.err}, nil)
			ts := httptest.NewServer(srv.Handler())
			defer ts.Close()

			_, err := NewClient(ts.URL).RefreshAll(context.Background())
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.want, apiErr.StatusCode)
		})
	}
}

func TestServer_SearchNotConfigured(t *testing.T) {
	srv := NewServer("", &stubService{}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, err := NewClient(ts.URL).Search(context.Background(), SearchRequest{Query: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotImplemented, apiErr.StatusCode)
}
