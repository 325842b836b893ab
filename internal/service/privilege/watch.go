package privilege

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
)

// ChangeFunc receives the privilege status after an observed change.
type ChangeFunc func(ctx context.Context, status lockdown.PrivilegeStatus)

// Watch observes the consent file and reports status transitions until ctx ends.
// Repeated events with an unchanged status are not reported.
func (g *FileGate) Watch(ctx context.Context, fn ChangeFunc) error {
	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create grant directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer watcher.Close()

	if err = watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx = logger.WithName(ctx, "privilege-watch")
	last := g.IsGranted(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != g.path {
				continue
			}

			current := g.IsGranted(ctx)
			if current == last {
				continue
			}

			logger.InfoKV(ctx, "Privilege changed", "op", event.Op.String(), "status", current.String())

			last = current
			fn(ctx, current)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.WarnKV(ctx, "Grant watcher error", "error", werr)
		}
	}
}
