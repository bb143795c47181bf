package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeCommandOmitsEmptyOptions(t *testing.T) {
	require.Equal(t, "status:abc\n", EncodeCommand(Request{Action: ActionStatus, Key: "abc"}))
	require.Equal(t, "shutdown:abc\n", EncodeCommand(Request{Action: ActionShutdown, Key: "abc"}))
}

func TestEncodeCommandWithOptions(t *testing.T) {
	got := EncodeCommand(Request{Action: ActionRestart, Key: "k", Options: Options{Delay: 30, Force: true}})
	require.Equal(t, "restart:k:delay=30,force=true\n", got)
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Request
	}{
		{name: "no options", line: "sleep:abc\n", want: Request{Action: ActionSleep, Key: "abc"}},
		{name: "empty options", line: "status:abc:\n", want: Request{Action: ActionStatus, Key: "abc"}},
		{name: "crlf", line: "logout:abc\r\n", want: Request{Action: ActionLogout, Key: "abc"}},
		{
			name: "delay and force",
			line: "shutdown:abc:delay=5,force=true\n",
			want: Request{Action: ActionShutdown, Key: "abc", Options: Options{Delay: 5, Force: true}},
		},
		{
			name: "unknown option ignored",
			line: "restart:abc:mode=x,delay=2\n",
			want: Request{Action: ActionRestart, Key: "abc", Options: Options{Delay: 2}},
		},
		{name: "empty key", line: "cancel:\n", want: Request{Action: ActionCancel}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeCommand(tc.line)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeCommandRejectsMalformed(t *testing.T) {
	for _, line := range []string{"status\n", "\n", "shutdown:abc:delay=-1", "shutdown:abc:delay=x", "shutdown:abc:force"} {
		_, err := DecodeCommand(line)
		require.Error(t, err, line)
		require.True(t, errors.Is(err, ErrMalformedCommand), line)
	}

	_, err := DecodeCommand("reboot-now:abc\n")
	require.ErrorIs(t, err, ErrUnsupportedAction)
}

func TestCommandRoundTripKeepsOptions(t *testing.T) {
	req := Request{Action: ActionShutdown, Key: "secret", Options: Options{Delay: 60}}
	got, err := DecodeCommand(EncodeCommand(req))
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestDecodeResponseTokens(t *testing.T) {
	tests := []struct {
		line    string
		success bool
		message string
	}{
		{line: "OK:Sleep initiated\n", success: true, message: "Sleep initiated"},
		{line: "success:done\n", success: true, message: "done"},
		{line: "ERROR:Authentication failed: Invalid key\n", success: false, message: "Authentication failed: Invalid key"},
		{line: "fail:nope\n", success: false, message: "nope"},
		{line: "WEIRD:thing\n", success: true, message: "WEIRD:thing"},
		{line: "no token here\n", success: true, message: "no token here"},
	}

	for _, tc := range tests {
		resp, err := DecodeResponse(tc.line)
		require.NoError(t, err, tc.line)
		require.Equal(t, tc.success, resp.Success, tc.line)
		require.Equal(t, tc.message, resp.Message, tc.line)
	}
}

func TestDecodeResponseEmptyIsMalformed(t *testing.T) {
	_, err := DecodeResponse("\n")
	require.ErrorIs(t, err, ErrMalformedResponse)

	_, err = DecodeResponse("{not json\n")
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestStatusResponseRoundTrip(t *testing.T) {
	resp := Response{
		Success: true,
		Status: &Status{
			Hostname:        "DESKTOP-A",
			Platform:        "linux",
			Uptime:          3700,
			UptimeFormatted: "1h 1m",
			TotalMemory:     8 << 30,
			FreeMemory:      2 << 30,
			CPUs:            8,
			LocalIP:         "192.168.1.20",
			Timestamp:       "2026-10-18T10:00:00Z",
		},
	}

	line := EncodeResponse(resp)
	require.Contains(t, line, `"hostname":"DESKTOP-A"`)
	require.Contains(t, line, `"uptimeFormatted":"1h 1m"`)

	decoded, err := DecodeResponse(line)
	require.NoError(t, err)
	require.True(t, decoded.Success)
	require.NotNil(t, decoded.Status)
	require.Equal(t, *resp.Status, *decoded.Status)
}

func TestEncodeResponseFailureNeverCarriesScheduledTime(t *testing.T) {
	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	resp := Response{Success: false, Message: "boom", ScheduledTime: &at}

	require.Nil(t, resp.Normalize().ScheduledTime)
	require.Equal(t, "ERROR:boom\n", EncodeResponse(resp))
}

func TestFormatUptime(t *testing.T) {
	require.Equal(t, "0m", FormatUptime(12))
	require.Equal(t, "1h 1m", FormatUptime(3660))
	require.Equal(t, "2d 0h 5m", FormatUptime(2*86400+300))
}

func TestDescribeDistinguishesKinds(t *testing.T) {
	kinds := []error{
		ErrAuthRequired, ErrInvalidCredential, ErrUnreachable, ErrTimeout,
		ErrTransportDisconnected, ErrTransportBusy, ErrMalformedResponse,
		ErrExecutorFailure, ErrScanExhausted,
	}
	seen := map[string]struct{}{}
	for _, kind := range kinds {
		msg := Describe(kind)
		require.NotEmpty(t, msg)
		_, dup := seen[msg]
		require.False(t, dup, msg)
		seen[msg] = struct{}{}
	}
}
