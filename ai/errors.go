package ai

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid embedding config")

	// ErrDimensionMismatch is returned when a model produces vectors of a
	// different length than configured.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
