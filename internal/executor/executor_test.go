package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbright/powerctl/internal/power"
	"github.com/rbright/powerctl/internal/protocol"
	"github.com/stretchr/testify/require"
)

type call struct {
	name  string
	delay time.Duration
	force bool
	mode  power.SuspendMode
}

type fakeSurface struct {
	calls     []call
	err       error
	cancelErr error
}

func (f *fakeSurface) Shutdown(_ context.Context, delay time.Duration, force bool) error {
	f.calls = append(f.calls, call{name: "shutdown", delay: delay, force: force})
	return f.err
}

func (f *fakeSurface) Restart(_ context.Context, delay time.Duration, force bool) error {
	f.calls = append(f.calls, call{name: "restart", delay: delay, force: force})
	return f.err
}

func (f *fakeSurface) Suspend(_ context.Context, mode power.SuspendMode) error {
	f.calls = append(f.calls, call{name: "suspend", mode: mode})
	return f.err
}

func (f *fakeSurface) Logout(context.Context) error {
	f.calls = append(f.calls, call{name: "logout"})
	return f.err
}

func (f *fakeSurface) Cancel(context.Context) error {
	f.calls = append(f.calls, call{name: "cancel"})
	return f.cancelErr
}

type fakeHost struct {
	host power.Host
	err  error
}

func (f fakeHost) Inspect(context.Context) (power.Host, error) {
	return f.host, f.err
}

func newTestExecutor(surface *fakeSurface, host power.Introspector) *Executor {
	e := New(surface, host, nil)
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestExecuteMapsActionsToSurface(t *testing.T) {
	tests := []struct {
		req     protocol.Request
		want    call
		message string
	}{
		{
			req:     protocol.Request{Action: protocol.ActionShutdown},
			want:    call{name: "shutdown"},
			message: "Shutdown initiated immediately",
		},
		{
			req:     protocol.Request{Action: protocol.ActionRestart, Options: protocol.Options{Force: true}},
			want:    call{name: "restart", force: true},
			message: "Restart initiated immediately",
		},
		{
			req:     protocol.Request{Action: protocol.ActionSleep},
			want:    call{name: "suspend", mode: power.SuspendSleep},
			message: "Sleep initiated",
		},
		{
			req:     protocol.Request{Action: protocol.ActionHibernate},
			want:    call{name: "suspend", mode: power.SuspendHibernate},
			message: "Hibernate initiated",
		},
		{
			req:     protocol.Request{Action: protocol.ActionLogout},
			want:    call{name: "logout"},
			message: "Logout initiated",
		},
	}

	for _, tc := range tests {
		t.Run(string(tc.req.Action), func(t *testing.T) {
			surface := &fakeSurface{}
			resp, err := newTestExecutor(surface, fakeHost{}).Execute(context.Background(), tc.req)
			require.NoError(t, err)
			require.True(t, resp.Success)
			require.Equal(t, tc.message, resp.Message)
			require.Nil(t, resp.ScheduledTime)
			require.Equal(t, []call{tc.want}, surface.calls)
		})
	}
}

func TestDelayedShutdownCarriesScheduledTime(t *testing.T) {
	surface := &fakeSurface{}
	resp, err := newTestExecutor(surface, fakeHost{}).Execute(context.Background(), protocol.Request{
		Action:  protocol.ActionShutdown,
		Options: protocol.Options{Delay: 60, Force: true},
	})
	require.NoError(t, err)
	require.Equal(t, "Shutdown scheduled in 60 seconds", resp.Message)
	require.NotNil(t, resp.ScheduledTime)
	require.Equal(t, time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), *resp.ScheduledTime)
	require.Equal(t, []call{{name: "shutdown", delay: time.Minute, force: true}}, surface.calls)
}

func TestCancelWithNothingScheduledSucceeds(t *testing.T) {
	surface := &fakeSurface{cancelErr: power.ErrNothingScheduled}
	resp, err := newTestExecutor(surface, fakeHost{}).Execute(context.Background(), protocol.Request{Action: protocol.ActionCancel})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "Scheduled shutdown/restart cancelled", resp.Message)
	require.Len(t, surface.calls, 1)
}

func TestSurfaceFailureIsExecutorFailure(t *testing.T) {
	surface := &fakeSurface{err: errors.New("permission denied")}
	resp, err := newTestExecutor(surface, fakeHost{}).Execute(context.Background(), protocol.Request{
		Action:  protocol.ActionRestart,
		Options: protocol.Options{Delay: 30},
	})
	require.ErrorIs(t, err, protocol.ErrExecutorFailure)
	require.ErrorContains(t, err, "permission denied")
	require.False(t, resp.Success)
	require.Nil(t, resp.ScheduledTime)
	require.Len(t, surface.calls, 1)
}

func TestStatusReportsHost(t *testing.T) {
	host := fakeHost{host: power.Host{
		Hostname:    "DESKTOP-A",
		Platform:    "linux",
		Uptime:      90061 * time.Second,
		TotalMemory: 16 << 30,
		FreeMemory:  8 << 30,
		CPUs:        8,
		LocalIP:     "192.168.43.100",
	}}
	surface := &fakeSurface{}
	resp, err := newTestExecutor(surface, host).Execute(context.Background(), protocol.Request{Action: protocol.ActionStatus})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Status)
	require.Equal(t, "DESKTOP-A", resp.Hostname)
	require.Equal(t, "1d 1h 1m", resp.UptimeFormatted)
	require.Equal(t, 8, resp.CPUs)
	require.Equal(t, "2026-03-01T12:00:00Z", resp.Timestamp)
	require.Empty(t, surface.calls)
}

func TestStatusIntrospectionFailure(t *testing.T) {
	_, err := newTestExecutor(&fakeSurface{}, fakeHost{err: errors.New("no hostname")}).
		Execute(context.Background(), protocol.Request{Action: protocol.ActionStatus})
	require.ErrorIs(t, err, protocol.ErrExecutorFailure)
}

func TestUnknownActionIsUnsupported(t *testing.T) {
	surface := &fakeSurface{}
	_, err := newTestExecutor(surface, fakeHost{}).Execute(context.Background(), protocol.Request{Action: "reboot-now"})
	require.ErrorIs(t, err, protocol.ErrUnsupportedAction)
	require.Empty(t, surface.calls)
}
