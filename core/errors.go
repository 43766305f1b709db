package core

import "errors"

// Validation failures wrap ErrInvalidSource or ErrInvalidChunk together with
// the specific cause below.
var (
	ErrInvalidSource = errors.New("invalid knowledge source")
	ErrInvalidChunk  = errors.New("invalid chunk")

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid status")
	// ErrInvalidProgress covers values outside 0-100 and regressions within a run.
	ErrInvalidProgress = errors.New("invalid progress")

	ErrEmptySourcePath = errors.New("source path cannot be empty")
	ErrEmptyFilename   = errors.New("filename cannot be empty")
	ErrEmptyContent    = errors.New("content cannot be empty")
)
