package status

import (
	"context"
	"slices"
	"sync"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

// defaultHistory is how many notices a Recorder keeps.
const defaultHistory = 20

// Recorder keeps the latest indicator and a bounded notice history in memory.
type Recorder struct {
	// indicator is the last indicator set.
	indicator lockdown.Indicator
	// notices is the history, oldest first.
	notices []lockdown.Notice
	// history bounds notices.
	history int
	// mu guards the fields above.
	mu sync.RWMutex
}

var _ Surface = (*Recorder)(nil)

// NewRecorder creates a recorder holding up to history notices.
func NewRecorder(history int) *Recorder {
	if history <= 0 {
		history = defaultHistory
	}

	return &Recorder{
		indicator: Released(),
		history:   history,
	}
}

// Notify appends notice, evicting the oldest if full.
func (r *Recorder) Notify(_ context.Context, notice lockdown.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.notices) == r.history {
		r.notices = slices.Delete(r.notices, 0, 1)
	}

	r.notices = append(r.notices, notice)
}

// SetIndicator stores indicator.
func (r *Recorder) SetIndicator(_ context.Context, indicator lockdown.Indicator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.indicator = indicator
}

// Indicator returns the last indicator set.
func (r *Recorder) Indicator() lockdown.Indicator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.indicator
}

// Notices returns a copy of the history, oldest first.
func (r *Recorder) Notices() []lockdown.Notice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.notices)
}

// Texts returns the notice texts, oldest first.
func (r *Recorder) Texts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.notices))
	for _, notice := range r.notices {
		result = append(result, notice.Text)
	}

	return result
}
