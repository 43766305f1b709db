package main

import (
	"context"
	"fmt"

	"github.com/poiesic/kbingest"
	"github.com/poiesic/kbingest/api"
	"github.com/poiesic/kbingest/config"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/poller"
	"github.com/poiesic/kbingest/search"
)

// backend is what the commands need, served either by a store opened in
// this process or by a remote server.
type backend interface {
	poller.Lister
	Submit(ctx context.Context, path, description string) (*core.KnowledgeSource, error)
	Refresh(ctx context.Context, id core.ID) (*core.KnowledgeSource, error)
	RefreshAll(ctx context.Context) (queued, skipped []core.ID, err error)
	Delete(ctx context.Context, id core.ID) error
	Stats(ctx context.Context) (*core.Stats, error)
	Search(ctx context.Context, query string, topK int, sources []core.ID) ([]*core.SearchResult, error)
	// Remote reports whether jobs keep running after this process exits.
	Remote() bool
	Close() error
}

// localBackend owns the store for the lifetime of one command. Opening it
// reconciles sources left active by a previous process.
type localBackend struct {
	db       *kbingest.Database
	service  *ingestion.Service
	searcher *search.Searcher
	notify   func()
}

func openLocal(ctx context.Context, cfg *config.Config, opts ...kbingest.DatabaseOption) (*localBackend, error) {
	opts = append([]kbingest.DatabaseOption{kbingest.WithAIConfig(cfg.AIConfig())}, opts...)
	db, err := kbingest.NewDatabase(cfg.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	l := &localBackend{db: db, notify: func() {}}
	l.service, err = db.NewService(
		ingestion.WithConfig(cfg.IngestionConfig()),
		ingestion.WithNotify(func() { l.notify() }),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	l.searcher, err = db.NewSearcher(search.WithMinScore(cfg.Search.MinScore))
	if err != nil {
		l.service.Close()
		db.Close()
		return nil, err
	}
	if err := l.service.Start(ctx); err != nil {
		l.service.Close()
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *localBackend) List(ctx context.Context) ([]*core.KnowledgeSource, error) {
	return l.service.List(ctx)
}

func (l *localBackend) Submit(ctx context.Context, path, description string) (*core.KnowledgeSource, error) {
	return l.service.Submit(ctx, path, ingestion.WithDescription(description))
}

func (l *localBackend) Refresh(ctx context.Context, id core.ID) (*core.KnowledgeSource, error) {
	return l.service.Refresh(ctx, id)
}

func (l *localBackend) RefreshAll(ctx context.Context) ([]core.ID, []core.ID, error) {
	return l.service.RefreshAll(ctx)
}

func (l *localBackend) Delete(ctx context.Context, id core.ID) error {
	return l.service.Delete(ctx, id)
}

func (l *localBackend) Stats(ctx context.Context) (*core.Stats, error) {
	return l.service.Stats(ctx)
}

func (l *localBackend) Search(ctx context.Context, query string, topK int, sources []core.ID) ([]*core.SearchResult, error) {
	return l.searcher.FindSimilar(ctx, query, topK, sources...)
}

func (l *localBackend) Remote() bool { return false }

func (l *localBackend) Close() error {
	if err := l.service.Close(); err != nil {
		l.db.Close()
		return err
	}
	return l.db.Close()
}

type remoteBackend struct {
	client *api.Client
}

func (r *remoteBackend) List(ctx context.Context) ([]*core.KnowledgeSource, error) {
	return r.client.List(ctx)
}

func (r *remoteBackend) Submit(ctx context.Context, path, description string) (*core.KnowledgeSource, error) {
	return viewSource(r.client.Submit(ctx, path, description))
}

func (r *remoteBackend) Refresh(ctx context.Context, id core.ID) (*core.KnowledgeSource, error) {
	return viewSource(r.client.Refresh(ctx, id))
}

func (r *remoteBackend) RefreshAll(ctx context.Context) ([]core.ID, []core.ID, error) {
	resp, err := r.client.RefreshAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	return resp.Queued, resp.Skipped, nil
}

func (r *remoteBackend) Delete(ctx context.Context, id core.ID) error {
	return r.client.Delete(ctx, id)
}

func (r *remoteBackend) Stats(ctx context.Context) (*core.Stats, error) {
	return r.client.Stats(ctx)
}

func (r *remoteBackend) Search(ctx context.Context, query string, topK int, sources []core.ID) ([]*core.SearchResult, error) {
	return r.client.Search(ctx, api.SearchRequest{Query: query, TopK: topK, SourceIDs: sources})
}

func (r *remoteBackend) Remote() bool { return true }

func (r *remoteBackend) Close() error { return nil }

func viewSource(view *api.SourceView, err error) (*core.KnowledgeSource, error) {
	if err != nil {
		return nil, err
	}
	src := view.KnowledgeSource
	src.Features = view.Features
	return src, nil
}
