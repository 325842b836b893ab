package status

import (
	"context"
	"sync"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

// Indicator texts.
const (
	// IndicatorTitle heads the persistent indicator.
	IndicatorTitle = "Lockdown"
	// LockedText is shown while a lockdown is active.
	LockedText = "Device is now locked."
	// ReleasedText is shown once the scheduled period is over.
	ReleasedText = "Scheduled lock period ended. You can now unlock your device."
)

// Surface receives user-visible output. Sinks handle their own failures.
type Surface interface {
	// Notify shows an ephemeral notice.
	Notify(ctx context.Context, notice lockdown.Notice)
	// SetIndicator replaces the persistent indicator.
	SetIndicator(ctx context.Context, indicator lockdown.Indicator)
}

// Locked is the indicator shown while any lockdown track is active.
func Locked() lockdown.Indicator {
	return lockdown.Indicator{
		On:    true,
		Title: IndicatorTitle,
		Text:  LockedText,
		Icon:  lockdown.IconLocked,
	}
}

// Released is the indicator state after the last track ends.
func Released() lockdown.Indicator {
	return lockdown.Indicator{
		On:    false,
		Title: IndicatorTitle,
		Text:  ReleasedText,
		Icon:  lockdown.IconUnlocked,
	}
}

type multi []Surface

// Multi delivers to every non-nil sink in order.
func Multi(sinks ...Surface) Surface {
	result := make(multi, 0, len(sinks))

	for _, sink := range sinks {
		if sink != nil {
			result = append(result, sink)
		}
	}

	return result
}

func (m multi) Notify(ctx context.Context, notice lockdown.Notice) {
	for _, sink := range m {
		sink.Notify(ctx, notice)
	}
}

func (m multi) SetIndicator(ctx context.Context, indicator lockdown.Indicator) {
	for _, sink := range m {
		sink.SetIndicator(ctx, indicator)
	}
}

// defaultDedupeWindow is how many recent notice keys Dedupe remembers.
const defaultDedupeWindow = 128

// Deduper forwards notices once per key.
type Deduper struct {
	// next receives deduplicated output.
	next Surface
	// seen holds recently delivered keys.
	seen map[string]struct{}
	// order is the eviction ring for seen.
	order []string
	// capacity bounds seen.
	capacity int
	// mu guards seen and order.
	mu sync.Mutex
}

// Dedupe wraps next so a notice key is delivered at most once among the last
// capacity keys. Notices without a key are always delivered.
func Dedupe(next Surface, capacity int) *Deduper {
	if capacity <= 0 {
		capacity = defaultDedupeWindow
	}

	return &Deduper{
		next:     next,
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// Notify forwards notice unless its key was already delivered.
func (d *Deduper) Notify(ctx context.Context, notice lockdown.Notice) {
	if notice.Key != "" && !d.remember(notice.Key) {
		return
	}

	d.next.Notify(ctx, notice)
}

// SetIndicator always forwards.
func (d *Deduper) SetIndicator(ctx context.Context, indicator lockdown.Indicator) {
	d.next.SetIndicator(ctx, indicator)
}

func (d *Deduper) remember(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, found := d.seen[key]; found {
		return false
	}

	if len(d.order) == d.capacity {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}

	d.seen[key] = struct{}{}
	d.order = append(d.order, key)

	return true
}
