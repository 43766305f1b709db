package extract

import "errors"

var (
	// ErrUnsupportedFormat is returned for file extensions with no registered extractor.
	ErrUnsupportedFormat = errors.New("unsupported file type")

	// ErrNoText is returned when a document yields no text at all.
	ErrNoText = errors.New("no text content found")
)
