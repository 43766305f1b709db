package core

import (
	"fmt"
	"slices"
	"time"
)

// Enqueue moves a terminal (or new) source back to Pending for a new run.
// Progress is reset and any previous error is cleared. LastIndexedAt, ChunkCount
// and Features are kept until the new run finishes.
func (s *KnowledgeSource) Enqueue() error {
	if s.Status == StatusRunning {
		return fmt.Errorf("%w: cannot enqueue a %s source", ErrInvalidTransition, s.Status)
	}
	s.Status = StatusPending
	s.Progress = 0
	s.CurrentStep = ""
	s.ErrorMessage = ""
	return nil
}

// Start moves a Pending source to Running at the first stage.
func (s *KnowledgeSource) Start(now time.Time) error {
	if s.Status != StatusPending {
		return fmt.Errorf("%w: cannot start a %s source", ErrInvalidTransition, s.Status)
	}
	s.Status = StatusRunning
	s.Progress = ProgressExtracting
	s.CurrentStep = StepExtracting
	s.StartedAt = now.UTC()
	s.ErrorMessage = ""
	return nil
}

// Advance records that a Running source has entered a new stage.
// Progress never moves backwards within a run and stays below 100 until Complete.
func (s *KnowledgeSource) Advance(step string, progress int) error {
	if s.Status != StatusRunning {
		return fmt.Errorf("%w: cannot advance a %s source", ErrInvalidTransition, s.Status)
	}
	if progress < s.Progress || progress >= ProgressComplete {
		return fmt.Errorf("%w: progress %d -> %d", ErrInvalidProgress, s.Progress, progress)
	}
	s.Progress = progress
	s.CurrentStep = step
	return nil
}

// Complete finishes a Running source successfully.
func (s *KnowledgeSource) Complete(now time.Time, chunkCount int, features []string) error {
	if s.Status != StatusRunning {
		return fmt.Errorf("%w: cannot complete a %s source", ErrInvalidTransition, s.Status)
	}
	s.Status = StatusCompleted
	s.Progress = ProgressComplete
	s.CurrentStep = ""
	s.LastIndexedAt = now.UTC()
	s.ChunkCount = chunkCount
	s.Features = dedupeFeatures(features)
	return nil
}

// Fail finishes an active source with an error. Progress is left at the last
// value reached so callers can see where the run stopped.
func (s *KnowledgeSource) Fail(message string) error {
	if !s.Status.IsActive() {
		return fmt.Errorf("%w: cannot fail a %s source", ErrInvalidTransition, s.Status)
	}
	if message == "" {
		message = "unknown error"
	}
	s.Status = StatusFailed
	s.CurrentStep = ""
	s.ErrorMessage = message
	return nil
}

func dedupeFeatures(features []string) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}
