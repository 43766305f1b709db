package search

import "errors"

var (
	ErrChunkStoreRequired = errors.New("chunk store required")
	ErrEmbedderRequired   = errors.New("embedder required")
	ErrEmptyQuery         = errors.New("search query cannot be empty")
)
