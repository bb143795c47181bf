// Package transport carries action requests from the controller to a host.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rbright/powerctl/internal/protocol"
)

// State is the connection state of a transport.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Transport is the contract shared by the networked and serial channels.
type Transport interface {
	Connect(ctx context.Context, target string) error
	Disconnect() error
	IsConnected() bool
	SendAction(ctx context.Context, req protocol.Request, timeout time.Duration) (protocol.Response, error)
}

// classifyNetError maps a low-level failure to a taxonomy kind. The raw cause
// survives only in the message.
func classifyNetError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %s: %v", protocol.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", protocol.ErrUnreachable, op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
