//go:build !linux

package rfcomm

import (
	"context"
	"net"
)

// Available reports whether the kernel accepts RFCOMM sockets.
func Available() bool {
	return false
}

// DialContext always fails on this platform.
func (Dialer) DialContext(context.Context, string) (net.Conn, error) {
	return nil, ErrUnavailable
}

// Listen always fails on this platform.
func Listen(uint8) (net.Listener, error) {
	return nil, ErrUnavailable
}
