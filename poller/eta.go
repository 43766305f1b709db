package poller

import (
	"fmt"
	"math"
	"time"

	"github.com/poiesic/kbingest/core"
)

const (
	etaCalculating = "Calculating..."
	etaAlmostDone  = "Almost done..."

	// minElapsed is how long a run must have been going before its
	// progress rate means anything.
	minElapsed = 2 * time.Second
)

// EstimateRemaining extrapolates the time left for a Running source from
// its progress so far. It returns "" for sources that are not Running.
func EstimateRemaining(src *core.KnowledgeSource, now time.Time) string {
	if src == nil || src.Status != core.StatusRunning {
		return ""
	}
	if src.StartedAt.IsZero() || src.Progress <= 0 {
		return etaCalculating
	}
	elapsed := now.Sub(src.StartedAt)
	if elapsed < minElapsed {
		return etaCalculating
	}

	estimatedTotal := elapsed * 100 / time.Duration(src.Progress)
	remaining := estimatedTotal - elapsed
	if remaining < 0 {
		return etaAlmostDone
	}

	seconds := int(remaining.Round(time.Second).Seconds())
	if seconds < 60 {
		return fmt.Sprintf("~%ds remaining", seconds)
	}
	return fmt.Sprintf("~%d min remaining", int(math.Ceil(remaining.Minutes())))
}
