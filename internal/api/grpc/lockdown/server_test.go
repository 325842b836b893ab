package lockdown

import (
	"context"
	"fmt"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	domain "github.com/oshokin/lockdown/internal/domain/lockdown"
)

// fakeService implements Service for unit testing the transport.
type fakeService struct {
	// err is returned by every command when set.
	err error
	// seconds records the last countdown request.
	seconds string
	// window records the last window request.
	window [2]string
	// snapshot is returned by Status.
	snapshot domain.Snapshot
}

func (f *fakeService) StartCountdown(_ context.Context, seconds string) error {
	f.seconds = seconds

	return f.err
}

func (f *fakeService) SetDailyWindow(_ context.Context, start, end string) error {
	f.window = [2]string{start, end}

	return f.err
}

func (f *fakeService) CancelDailyWindow(context.Context) error { return f.err }

func (f *fakeService) LockNow(context.Context) error { return f.err }

func (f *fakeService) Status(context.Context) (domain.Snapshot, error) { return f.snapshot, f.err }

// TestServer_Validation ensures nil requests return InvalidArgument errors.
func TestServer_Validation(t *testing.T) {
	t.Parallel()

	s := NewServer(new(fakeService))

	_, err := s.StartCountdown(context.Background(), nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.SetDailyWindow(context.Background(), nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestServer_ErrorMapping checks every domain error kind survives the status round trip.
func TestServer_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sentinel error
		code     codes.Code
	}{
		{sentinel: domain.ErrBadTimeFormat, code: codes.InvalidArgument},
		{sentinel: domain.ErrPrivilegeMissing, code: codes.FailedPrecondition},
		{sentinel: domain.ErrLockUnavailable, code: codes.Unavailable},
		{sentinel: domain.ErrAlarmArmFailed, code: codes.Internal},
		{sentinel: domain.ErrPersistenceFailure, code: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.sentinel.Error(), func(t *testing.T) {
			t.Parallel()

			s := NewServer(&fakeService{err: fmt.Errorf("command: %w", tt.sentinel)})

			_, err := s.StartCountdown(context.Background(), wrapperspb.String("5"))
			require.Equal(t, tt.code, status.Code(err))
			require.ErrorIs(t, FromStatus(err), tt.sentinel)

			_, err = s.LockNow(context.Background(), new(emptypb.Empty))
			require.ErrorIs(t, FromStatus(err), tt.sentinel)
		})
	}
}

func TestStatusError_Passthrough(t *testing.T) {
	t.Parallel()

	require.NoError(t, StatusError(nil))

	original := status.Error(codes.NotFound, "gone")
	require.Equal(t, original, StatusError(original))
	require.Equal(t, original, FromStatus(original))

	require.Equal(t, codes.DeadlineExceeded, status.Code(StatusError(context.DeadlineExceeded)))
	require.Equal(t, codes.Unknown, status.Code(StatusError(fmt.Errorf("boom"))))
}

// TestServer_Roundtrip exercises commands and GetStatus on the server implementation.
func TestServer_Roundtrip(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		startedAt := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
		service := &fakeService{
			snapshot: domain.Snapshot{
				State:     domain.EnforcementState{CountdownOn: true, WindowOn: true},
				Privilege: domain.Granted,
				Countdown: &domain.Countdown{StartedAt: startedAt, Duration: 90 * time.Second},
				DailyWindow: &domain.DailyWindow{
					Start: domain.HourMinute{Hour: 22},
					End:   domain.HourMinute{Hour: 6, Minute: 30},
				},
				Indicator: domain.Indicator{On: true, Title: "Lockdown", Text: "Device is now locked.", Icon: domain.IconLocked},
				Alarms: []domain.AlarmRecord{
					{Key: domain.AlarmCountdownEnd, NextFire: startedAt.Add(90 * time.Second)},
					{Key: domain.AlarmLock, NextFire: startedAt.Add(10 * time.Hour), Period: domain.DailyPeriod},
				},
				Notices: []domain.Notice{{Key: "n1", Text: "Device locked for 90 seconds", Time: startedAt}},
			},
		}

		s := NewServer(service)

		_, err := s.StartCountdown(context.Background(), wrapperspb.String("90"))
		require.NoError(t, err)
		require.Equal(t, "90", service.seconds)

		_, err = s.SetDailyWindow(context.Background(), WindowRequest("22:00", "06:30"))
		require.NoError(t, err)
		require.Equal(t, [2]string{"22:00", "06:30"}, service.window)

		// Wait for all async operations to complete.
		synctest.Wait()

		response, err := s.GetStatus(context.Background(), new(emptypb.Empty))
		require.NoError(t, err)
		require.Equal(t, "Both", response.GetFields()["state"].GetStringValue())

		decoded, err := SnapshotFromStruct(response)
		require.NoError(t, err)
		require.Equal(t, service.snapshot, decoded)
	})
}

func TestSnapshotFromStruct_Empty(t *testing.T) {
	t.Parallel()

	response, err := SnapshotToStruct(domain.Snapshot{})
	require.NoError(t, err)

	decoded, err := SnapshotFromStruct(response)
	require.NoError(t, err)
	require.True(t, decoded.State.Idle())
	require.Nil(t, decoded.Countdown)
	require.Nil(t, decoded.DailyWindow)
	require.Empty(t, decoded.Alarms)
}
