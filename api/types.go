package api

import (
	"time"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/poller"
)

// SourceView is a knowledge source as returned by the API.
type SourceView struct {
	*core.KnowledgeSource
	// Features shadows the stored features, which are hidden while Running.
	Features []string `json:"features"`
	ETA      string   `json:"eta,omitempty"`
}

// SubmitRequest asks the server to ingest a file it can read.
type SubmitRequest struct {
	Path        string  `json:"path"`
	Description string  `json:"description,omitempty"`
	// ID resubmits an existing source, like a refresh.
	ID          core.ID `json:"id,omitempty"`
}

// RefreshAllResponse lists the sources queued and skipped by a bulk refresh.
type RefreshAllResponse struct {
	Queued  []core.ID `json:"queued"`
	Skipped []core.ID `json:"skipped"`
}

// SearchRequest is a text query over stored chunks.
type SearchRequest struct {
	Query     string    `json:"query"`
	TopK      int       `json:"top_k,omitempty"`
	SourceIDs []core.ID `json:"source_ids,omitempty"`
}

// SearchResponse holds ranked chunks.
type SearchResponse struct {
	Results []*core.SearchResult `json:"results"`
}

type errorResponse struct {
	Error  string      `json:"error"`
	Source *SourceView `json:"source,omitempty"`
}

const defaultTopK = 5

func newSourceView(src *core.KnowledgeSource, eta string) *SourceView {
	if src == nil {
		return nil
	}
	return &SourceView{
		KnowledgeSource: src,
		Features:        src.VisibleFeatures(),
		ETA:             eta,
	}
}

func fromSnapshot(items []poller.Item) []*SourceView {
	views := make([]*SourceView, len(items))
	for i, item := range items {
		views[i] = newSourceView(item.Source, item.ETA)
	}
	return views
}

func etaFor(src *core.KnowledgeSource, now func() time.Time) string {
	return poller.EstimateRemaining(src, now())
}
