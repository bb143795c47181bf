//go:build linux

package rfcomm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Available reports whether the kernel accepts RFCOMM sockets.
func Available() bool {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return false
	}
	_ = unix.Close(fd)
	return true
}

// DialContext connects to target ("MAC" or "MAC/channel").
func (d Dialer) DialContext(ctx context.Context, target string) (net.Conn, error) {
	remote, err := ParseTarget(target, d.Channel)
	if err != nil {
		return nil, err
	}

	fd, err := newSocket()
	if err != nil {
		return nil, err
	}
	err = unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: kernelOrder(remote.MAC), Channel: remote.Channel})
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rfcomm: connect %s: %w", remote, err)
	}

	f := os.NewFile(uintptr(fd), "rfcomm:"+remote.String())
	if deadline, ok := ctx.Deadline(); ok {
		_ = f.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = f.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := waitConnected(f); err != nil {
		_ = f.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("rfcomm: connect %s: %w", remote, ctx.Err())
		}
		return nil, fmt.Errorf("rfcomm: connect %s: %w", remote, err)
	}
	_ = f.SetWriteDeadline(time.Time{})

	return &conn{f: f, local: Addr{Channel: remote.Channel}, remote: remote}, nil
}

// Listen binds channel on every local adapter.
func Listen(channel uint8) (net.Listener, error) {
	if channel == 0 {
		channel = DefaultChannel
	}
	fd, err := newSocket()
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrRFCOMM{Channel: channel}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rfcomm: bind channel %d: %w", channel, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rfcomm: listen channel %d: %w", channel, err)
	}
	f := os.NewFile(uintptr(fd), fmt.Sprintf("rfcomm-listener:%d", channel))
	return &listener{f: f, addr: Addr{Channel: channel}}, nil
}

func newSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fd, nil
}

// waitConnected blocks until the nonblocking connect settles.
func waitConnected(f *os.File) error {
	raw, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var soErr error
	werr := raw.Write(func(fd uintptr) bool {
		code, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			soErr = err
			return true
		}
		if code == int(unix.EINPROGRESS) || code == int(unix.EALREADY) {
			return false
		}
		if code != 0 {
			soErr = unix.Errno(code)
		}
		return true
	})
	if werr != nil {
		return werr
	}
	return soErr
}

// kernelOrder reverses a display-order address; bdaddr_t is little-endian.
func kernelOrder(mac [6]byte) [6]uint8 {
	var out [6]uint8
	for i := range mac {
		out[i] = mac[len(mac)-1-i]
	}
	return out
}

type conn struct {
	f      *os.File
	local  Addr
	remote Addr
}

func (c *conn) Read(p []byte) (int, error)         { return c.f.Read(p) }
func (c *conn) Write(p []byte) (int, error)        { return c.f.Write(p) }
func (c *conn) Close() error                       { return c.f.Close() }
func (c *conn) LocalAddr() net.Addr                { return c.local }
func (c *conn) RemoteAddr() net.Addr               { return c.remote }
func (c *conn) SetDeadline(t time.Time) error      { return c.f.SetDeadline(t) }
func (c *conn) SetReadDeadline(t time.Time) error  { return c.f.SetReadDeadline(t) }
func (c *conn) SetWriteDeadline(t time.Time) error { return c.f.SetWriteDeadline(t) }

type listener struct {
	f    *os.File
	addr Addr
}

func (l *listener) Accept() (net.Conn, error) {
	raw, err := l.f.SyscallConn()
	if err != nil {
		return nil, closedOr(err)
	}

	var (
		nfd int
		sa  unix.Sockaddr
		aer error
	)
	rerr := raw.Read(func(fd uintptr) bool {
		nfd, sa, aer = unix.Accept4(int(fd), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		return !errors.Is(aer, unix.EAGAIN)
	})
	if rerr != nil {
		return nil, closedOr(rerr)
	}
	if aer != nil {
		return nil, fmt.Errorf("rfcomm: accept: %w", aer)
	}

	remote := Addr{Channel: l.addr.Channel}
	if rc, ok := sa.(*unix.SockaddrRFCOMM); ok {
		remote.MAC = kernelOrder(rc.Addr)
		remote.Channel = rc.Channel
	}
	f := os.NewFile(uintptr(nfd), "rfcomm:"+remote.String())
	return &conn{f: f, local: l.addr, remote: remote}, nil
}

func (l *listener) Close() error {
	return l.f.Close()
}

func (l *listener) Addr() net.Addr {
	return l.addr
}

func closedOr(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return net.ErrClosed
	}
	return err
}
