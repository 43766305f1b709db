package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/poiesic/kbingest/core"
	"github.com/poiesic/kbingest/ingestion"
	"github.com/poiesic/kbingest/storage"
)

// DefaultServerURL is used when neither the caller nor KBINGEST_SERVER_URL names a server.
const DefaultServerURL = "http://localhost:8080"

// Client talks to a kbingest server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Source     *SourceView
}

// Error formats the status code with the server's message.
func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code back to the matching sentinel error so
// callers can use errors.Is as they would against a local service.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return storage.ErrNotFound
	case http.StatusConflict:
		return ingestion.ErrConflict
	case http.StatusServiceUnavailable:
		return ingestion.ErrQueueFull
	default:
		return nil
	}
}

// NewClient creates a client for the server at baseURL.
// If baseURL is empty, uses KBINGEST_SERVER_URL or DefaultServerURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("KBINGEST_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit asks the server to ingest the file at path, which must be
// readable by the server.
func (c *Client) Submit(ctx context.Context, path, description string) (*SourceView, error) {
	var view SourceView
	err := c.do(ctx, http.MethodPost, "/api/v1/knowledge", SubmitRequest{Path: path, Description: description}, &view)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Sources lists every source with its ETA.
func (c *Client) Sources(ctx context.Context) ([]*SourceView, error) {
	var views []*SourceView
	if err := c.do(ctx, http.MethodGet, "/api/v1/knowledge", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// List returns every source. It lets a poller follow a remote server.
func (c *Client) List(ctx context.Context) ([]*core.KnowledgeSource, error) {
	views, err := c.Sources(ctx)
	if err != nil {
		return nil, err
	}
	sources := make([]*core.KnowledgeSource, 0, len(views))
	for _, v := range views {
		if v.KnowledgeSource == nil {
			continue
		}
		v.KnowledgeSource.Features = v.Features
		sources = append(sources, v.KnowledgeSource)
	}
	return sources, nil
}

// Get returns one source.
func (c *Client) Get(ctx context.Context, id core.ID) (*SourceView, error) {
	var view SourceView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/knowledge/%d", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Refresh queues a new ingestion run for a source.
func (c *Client) Refresh(ctx context.Context, id core.ID) (*SourceView, error) {
	var view SourceView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/knowledge/%d/refresh", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// RefreshAll queues a refresh of every source that is not already active.
func (c *Client) RefreshAll(ctx context.Context) (*RefreshAllResponse, error) {
	var resp RefreshAllResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/knowledge/refresh", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes a source and its chunks.
func (c *Client) Delete(ctx context.Context, id core.ID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/knowledge/%d", id), nil, nil)
}

// Stats returns source and chunk counts.
func (c *Client) Stats(ctx context.Context) (*core.Stats, error) {
	var stats core.Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/knowledge/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Search runs a text query over stored chunks.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]*core.SearchResult, error) {
	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/knowledge/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var errResp errorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.Source = errResp.Source
		}
		return apiErr
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
