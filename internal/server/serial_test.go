package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rbright/powerctl/internal/protocol"
	"github.com/rbright/powerctl/internal/transport"
	"github.com/stretchr/testify/require"
)

func startSerial(t *testing.T, svc *Service) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeSerial(ctx, listener, svc, nil)
	}()
	t.Cleanup(cancel)
	return listener.Addr().String(), cancel, done
}

func TestServeSerialRejectsMismatchedKey(t *testing.T) {
	exec := &fakeExecutor{}
	addr, cancel, done := startSerial(t, NewService(ServiceConfig{Key: "xyz", Executor: exec}))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("status:abc:\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ERROR:Authentication failed: Invalid key\n", line)
	require.Empty(t, exec.Calls())

	cancel()
	require.NoError(t, <-done)
}

func TestServeSerialHandlesCommandsInOrder(t *testing.T) {
	exec := &fakeExecutor{resp: protocol.Response{Success: true, Message: "done"}}
	addr, _, _ := startSerial(t, NewService(ServiceConfig{Key: "abc", Executor: exec}))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for _, line := range []string{"sleep:abc\n", "restart:abc:delay=30,force=true\n", "garbage\n", "reboot:abc\n"} {
		_, err := conn.Write([]byte(line))
		require.NoError(t, err)
	}

	var replies []string
	for range 4 {
		reply, err := reader.ReadString('\n')
		require.NoError(t, err)
		replies = append(replies, reply)
	}
	require.Equal(t, []string{
		"OK:done\n",
		"OK:done\n",
		"ERROR:Invalid command format\n",
		"ERROR:Unknown action\n",
	}, replies)

	calls := exec.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, protocol.ActionSleep, calls[0].Action)
	require.Equal(t, protocol.Options{Delay: 30, Force: true}, calls[1].Options)
}

func TestServeSerialStatusPayload(t *testing.T) {
	exec := &fakeExecutor{resp: protocol.Response{Success: true, Status: &protocol.Status{Hostname: "DESKTOP-A", CPUs: 4}}}
	addr, _, _ := startSerial(t, NewService(ServiceConfig{Key: "abc", Executor: exec}))

	serial := transport.NewSerial(transport.DialerFunc(func(ctx context.Context, peer string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", peer)
	}), transport.SerialOptions{})
	require.NoError(t, serial.Connect(context.Background(), addr))
	defer serial.Disconnect()

	resp, err := serial.SendAction(context.Background(), protocol.Request{Action: protocol.ActionStatus, Key: "abc"}, time.Second)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "DESKTOP-A", resp.Hostname)
	require.Equal(t, 4, resp.CPUs)

	_, err = serial.SendAction(context.Background(), protocol.Request{Action: protocol.ActionSleep, Key: "nope"}, time.Second)
	require.ErrorIs(t, err, protocol.ErrInvalidCredential)
}

func TestServeSerialServesNextClientAfterDisconnect(t *testing.T) {
	exec := &fakeExecutor{resp: protocol.Response{Success: true, Message: "Logout initiated"}}
	addr, _, _ := startSerial(t, NewService(ServiceConfig{Key: "abc", Executor: exec}))

	for range 2 {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		_, err = conn.Write([]byte("logout:abc\n"))
		require.NoError(t, err)
		line, err := bufio.NewReader(conn).ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, "OK:Logout initiated\n", line)
		require.NoError(t, conn.Close())
	}
	require.Len(t, exec.Calls(), 2)
}
