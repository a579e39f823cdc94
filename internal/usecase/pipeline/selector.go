package pipeline

import (
	"time"

	"github.com/kailas-cloud/meterd/internal/domain"
)

// selectWindows computes the ordered sequence of windows to process. It
// starts at last+1 when a window has been processed before, otherwise at the
// month two before the current one: the immediately preceding month may still
// be receiving late usage exports. The sequence never includes the current or
// a future month and is capped at max entries.
func selectWindows(last *domain.Window, now time.Time, max int) []domain.Window {
	if max <= 0 {
		return nil
	}

	current := domain.WindowOf(now)

	var start domain.Window
	if last != nil {
		start = last.Next()
	} else {
		start = current.AddMonths(-2)
	}

	var windows []domain.Window
	for w := start; w.Before(current) && len(windows) < max; w = w.Next() {
		windows = append(windows, w)
	}
	return windows
}
