package status

import (
	"context"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
)

// LogSurface writes notices and indicator changes to the structured log.
type LogSurface struct{}

var _ Surface = LogSurface{}

// Notify logs the notice text.
func (LogSurface) Notify(ctx context.Context, notice lockdown.Notice) {
	logger.InfoKV(ctx, notice.Text, "notice_key", notice.Key)
}

// SetIndicator logs the indicator state.
func (LogSurface) SetIndicator(ctx context.Context, indicator lockdown.Indicator) {
	logger.InfoKV(
		ctx,
		"Indicator updated",
		"on", indicator.On,
		"icon", string(indicator.Icon),
		"text", indicator.Text,
	)
}
