package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/extract"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/search"
	"github.com/poiesic/kbingest/storage"
)

const maxRequestBody = 1 << 20

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	snap, err := s.poller.Poll(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, fromSnapshot(snap.Items))
}

func (s *Server) submitSource(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := []ingestion.SubmitOption{ingestion.WithDescription(req.Description)}
	if req.ID != 0 {
		opts = append(opts, ingestion.WithSourceID(req.ID))
	}
	src, err := s.service.Submit(r.Context(), req.Path, opts...)
	if err != nil {
		s.writeError(w, r, err, src)
		return
	}
	writeJSON(w, http.StatusAccepted, newSourceView(src, ""))
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	src, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.view(src))
}

func (s *Server) refreshSource(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	src, err := s.service.Refresh(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, src)
		return
	}
	writeJSON(w, http.StatusAccepted, s.view(src))
}

func (s *Server) refreshAll(w http.ResponseWriter, r *http.Request) {
	queued, skipped, err := s.service.RefreshAll(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if queued == nil {
		queued = []core.ID{}
	}
	if skipped == nil {
		skipped = []core.ID{}
	}
	writeJSON(w, http.StatusAccepted, RefreshAllResponse{Queued: queued, Skipped: skipped})
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.service.Delete(r.Context(), id); err != nil {
		var current *core.KnowledgeSource
		if errors.Is(err, ingestion.ErrConflict) {
			current, _ = s.service.Get(r.Context(), id)
		}
		s.writeError(w, r, err, current)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "search is not configured"})
		return
	}
	var req SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TopK == 0 {
		req.TopK = defaultTopK
	}
	results, err := s.searcher.FindSimilar(r.Context(), req.Query, req.TopK, req.SourceIDs...)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) view(src *core.KnowledgeSource) *SourceView {
	return newSourceView(src, etaFor(src, s.now))
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrConflict), errors.Is(err, ingestion.ErrAlreadyQueued):
		return http.StatusConflict
	case errors.Is(err, ingestion.ErrQueueFull), errors.Is(err, ingestion.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ingestion.ErrFileNotFound),
		errors.Is(err, ingestion.ErrInvalidPath),
		errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, storage.ErrInvalidQuery):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, current *core.KnowledgeSource) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	resp := errorResponse{Error: err.Error()}
	if current != nil {
		resp.Source = s.view(current)
	}
	writeJSON(w, status, resp)
}

func parseID(w http.ResponseWriter, r *http.Request) (core.ID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid source id %q", raw)})
		return 0, false
	}
	return core.ID(id), true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
