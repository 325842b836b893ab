package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/oshokin/lockdown/internal/clock"
	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
	repository "github.com/oshokin/lockdown/internal/repository/state"
	"github.com/oshokin/lockdown/internal/service/alarm"
	"github.com/oshokin/lockdown/internal/service/enforcer"
	"github.com/oshokin/lockdown/internal/service/privilege"
	"github.com/oshokin/lockdown/internal/service/screen"
	"github.com/oshokin/lockdown/internal/service/status"
)

// noticeHistory is how many recent notices the status API reports.
const noticeHistory = 20

// store persists both schedules and alarm records.
type store interface {
	repository.ScheduleRepository
	repository.AlarmRepository
}

// dependencies replaces host-facing collaborators; zero values select the real ones.
type dependencies struct {
	// clock drives alarms; nil means the wall clock.
	clock clock.Clock
	// locker drives the host lock; nil means the detected lock command.
	locker screen.Locker
	// surface receives notices in addition to the log and recorder; nil means
	// desktop notifications when enabled in settings.
	surface status.Surface
}

// daemon holds the wired components of lockdownd.
type daemon struct {
	// settings is the validated configuration.
	settings *config.Config
	// store persists schedules and alarm records.
	store store
	// closeStore releases the store backend.
	closeStore func() error
	// gate answers privilege queries and watches the grant file.
	gate *privilege.FileGate
	// dispatcher owns the wall-clock alarms.
	dispatcher *alarm.Dispatcher
	// core is the enforcement state machine.
	core *enforcer.Core
	// recorder backs the notices returned by the status API.
	recorder *status.Recorder
}

// newDaemon opens the store and wires the components without starting them.
func newDaemon(ctx context.Context, settings *config.Config, deps dependencies) (*daemon, error) {
	if err := os.MkdirAll(settings.StateDir, config.DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	st, closeStore, err := openStore(ctx, settings)
	if err != nil {
		return nil, err
	}

	c := deps.clock
	if c == nil {
		c = clock.Real()
	}

	locker := deps.locker
	if locker == nil {
		locker = screen.New(screen.WithOverride(settings.LockCommand))
	}

	d := &daemon{
		settings:   settings,
		store:      st,
		closeStore: closeStore,
		gate:       privilege.NewFileGate(settings.StatePath(privilege.GrantFilename)),
		recorder:   status.NewRecorder(noticeHistory),
	}

	// The sink needs the core, which needs the dispatcher.
	d.dispatcher = alarm.New(ctx, c, st, func(event lockdown.AlarmEvent) {
		if err := d.core.OnAlarm(ctx, event); err != nil {
			logger.WarnKV(ctx, "Alarm not handled", "alarm", event.ID(), "error", err)
		}
	}, alarm.Options{
		LateThreshold:  settings.LateThreshold,
		ResyncInterval: settings.ResyncInterval,
	})

	d.core, err = enforcer.New(enforcer.Options{
		Source:    clock.NewSource(c, settings.Location),
		Gate:      d.gate,
		Locker:    locker,
		Alarms:    d.dispatcher,
		Store:     st,
		Surface:   status.Dedupe(d.surface(deps.surface), 0),
		Presence:  enforcer.NewMarkerPresence(settings.StatePath(enforcer.PresenceFilename)),
		History:   d.recorder,
		QueueSize: settings.QueueSize,
	})
	if err != nil {
		_ = closeStore()

		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	return d, nil
}

// surface fans notices out to the log, the recorder and the desktop.
func (d *daemon) surface(extra status.Surface) status.Surface {
	sinks := []status.Surface{status.LogSurface{}, d.recorder}

	switch {
	case extra != nil:
		sinks = append(sinks, extra)
	case d.settings.DesktopNotifications:
		sinks = append(sinks, status.NewDesktop())
	}

	return status.Multi(sinks...)
}

// start loads alarm records, launches the enforcer and reconciles state,
// then starts the dispatcher and the privilege watcher. Background loops are
// tracked by wg and stop with ctx.
func (d *daemon) start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := d.dispatcher.Load(ctx); err != nil {
		return fmt.Errorf("load alarms: %w", err)
	}

	wg.Go(func() {
		_ = d.core.Run(ctx)
	})

	// A failed reconcile leaves the daemon serving; the next command or alarm
	// corrects the state.
	if err := d.core.Startup(ctx); err != nil {
		logger.ErrorKV(ctx, "Reconcile failed", "error", err)
	}

	wg.Go(func() {
		_ = d.dispatcher.Run(ctx)
	})

	wg.Go(func() {
		err := d.gate.Watch(ctx, func(ctx context.Context, s lockdown.PrivilegeStatus) {
			if err := d.core.HandlePrivilegeChange(ctx, s); err != nil && !errors.Is(err, enforcer.ErrStopped) {
				logger.WarnKV(ctx, "Privilege change not handled", "status", s.String(), "error", err)
			}
		})
		if err != nil {
			logger.ErrorKV(ctx, "Privilege watcher stopped", "error", err)
		}
	})

	return nil
}

// close releases the store.
func (d *daemon) close(ctx context.Context) {
	if err := d.closeStore(); err != nil {
		logger.WarnKV(ctx, "Close store", "error", err)
	}
}

// openStore opens the configured store backend.
func openStore(ctx context.Context, settings *config.Config) (store, func() error, error) {
	switch settings.Store {
	case config.StoreSQLite:
		db, err := repository.OpenSQLite(ctx, settings.StatePath(repository.DatabaseFilename))
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}

		return db, db.Close, nil
	default:
		return repository.NewFileRepository(settings.StateDir), func() error { return nil }, nil
	}
}
