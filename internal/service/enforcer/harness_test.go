package enforcer

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/lockdown/internal/clock"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/repository/state"
	"github.com/oshokin/lockdown/internal/service/alarm"
	"github.com/oshokin/lockdown/internal/service/status"
)

// start is a Friday noon in UTC.
var start = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

type fakeGate struct {
	granted atomic.Bool
}

func (g *fakeGate) IsGranted(context.Context) lockdown.PrivilegeStatus {
	if g.granted.Load() {
		return lockdown.Granted
	}

	return lockdown.NotGranted
}

type fakeLocker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *fakeLocker) LockNow(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return l.err
	}

	l.calls++

	return nil
}

func (l *fakeLocker) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	dir        string
	clock      *clock.FakeClock
	gate       *fakeGate
	locker     *fakeLocker
	recorder   *status.Recorder
	store      *state.FileRepository
	dispatcher *alarm.Dispatcher
	presence   *MarkerPresence
	core       *Core
	stop       func()
}

type harnessConfig struct {
	dir      string
	at       time.Time
	location *time.Location
	denied   bool
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()

	if cfg.dir == "" {
		cfg.dir = t.TempDir()
	}

	if cfg.at.IsZero() {
		cfg.at = start
	}

	if cfg.location == nil {
		cfg.location = time.UTC
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &harness{
		t:        t,
		ctx:      ctx,
		dir:      cfg.dir,
		clock:    clock.Fake(cfg.at),
		gate:     new(fakeGate),
		locker:   new(fakeLocker),
		recorder: status.NewRecorder(50),
		store:    state.NewFileRepository(cfg.dir),
		presence: NewMarkerPresence(filepath.Join(cfg.dir, PresenceFilename)),
	}

	h.gate.granted.Store(!cfg.denied)

	h.dispatcher = alarm.New(ctx, h.clock, h.store, func(event lockdown.AlarmEvent) {
		_ = h.core.OnAlarm(ctx, event)
	}, alarm.Options{LateThreshold: time.Minute, ResyncInterval: time.Minute})

	require.NoError(t, h.dispatcher.Load(ctx))

	core, err := New(Options{
		Source:   clock.NewSource(h.clock, cfg.location),
		Gate:     h.gate,
		Locker:   h.locker,
		Alarms:   h.dispatcher,
		Store:    h.store,
		Surface:  status.Dedupe(h.recorder, 0),
		Presence: h.presence,
		History:  h.recorder,
	})
	require.NoError(t, err)

	h.core = core

	done := make(chan error, 1)

	go func() {
		done <- core.Run(ctx)
	}()

	var once sync.Once

	h.stop = func() {
		once.Do(func() {
			cancel()
			require.NoError(t, <-done)
		})
	}

	t.Cleanup(h.stop)

	return h
}

func (h *harness) snapshot() lockdown.Snapshot {
	h.t.Helper()

	snapshot, err := h.core.Status(h.ctx)
	require.NoError(h.t, err)

	// The indicator always mirrors the state.
	require.Equal(h.t, !snapshot.State.Idle(), snapshot.Indicator.On)

	return snapshot
}

func (h *harness) texts() []string {
	return h.recorder.Texts()
}

func (h *harness) lastText() string {
	texts := h.texts()
	if len(texts) == 0 {
		return ""
	}

	return texts[len(texts)-1]
}

func (h *harness) countText(text string) int {
	count := 0

	for _, got := range h.texts() {
		if got == text {
			count++
		}
	}

	return count
}

func daily(key lockdown.AlarmKey, at time.Time) lockdown.AlarmRecord {
	return lockdown.AlarmRecord{Key: key, NextFire: at, Period: lockdown.DailyPeriod}
}
