// Package api exposes the ingestion service over HTTP and provides a
// client for it.
//
// Routes live under /api/v1/knowledge. Sources are returned with the
// features callers may see and, while Running, an estimated time remaining.
package api
