package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/rbright/powerctl/internal/protocol"
)

const (
	// DefaultSerialTimeout bounds the wait for one serial reply.
	DefaultSerialTimeout = 5 * time.Second

	defaultDialAttempts = 3
	defaultDialDelay    = 500 * time.Millisecond
	defaultDialMaxDelay = 2 * time.Second
)

// Dialer opens a byte stream to a bonded peer.
type Dialer interface {
	DialContext(ctx context.Context, peer string) (net.Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, peer string) (net.Conn, error)

func (f DialerFunc) DialContext(ctx context.Context, peer string) (net.Conn, error) {
	return f(ctx, peer)
}

// SerialOptions tunes the persistent transport.
type SerialOptions struct {
	Timeout      time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	Logger       *slog.Logger
}

func (o SerialOptions) withDefaults() SerialOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultSerialTimeout
	}
	if o.DialAttempts == 0 {
		o.DialAttempts = defaultDialAttempts
	}
	if o.DialDelay <= 0 {
		o.DialDelay = defaultDialDelay
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// link is one open connection. inflight is the single-flight guard.
type link struct {
	conn     net.Conn
	reader   *bufio.Reader
	inflight sync.Mutex
}

// Serial is the persistent line-oriented transport. At most one link is open.
type Serial struct {
	dialer Dialer
	opts   SerialOptions

	mu    sync.Mutex
	link  *link
	state State
	peer  string
}

// NewSerial builds a disconnected serial transport.
func NewSerial(dialer Dialer, opts SerialOptions) *Serial {
	return &Serial{dialer: dialer, opts: opts.withDefaults(), state: StateDisconnected}
}

// Connect tears down any open link, then dials peer with bounded retry.
func (s *Serial) Connect(ctx context.Context, peer string) error {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return fmt.Errorf("%w: no peer selected", protocol.ErrTransportDisconnected)
	}

	s.mu.Lock()
	s.closeLocked()
	s.state = StateConnecting
	s.peer = peer
	s.mu.Unlock()

	conn, err := retry.DoWithData(func() (net.Conn, error) {
		return s.dialer.DialContext(ctx, peer)
	},
		retry.Attempts(s.opts.DialAttempts),
		retry.Delay(s.opts.DialDelay),
		retry.MaxDelay(defaultDialMaxDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateError
		s.opts.Logger.Warn("serial connect failed", "peer", peer, "error", err.Error())
		return classifyNetError("dial "+peer, err)
	}
	if s.peer != peer || s.state != StateConnecting {
		// A newer Connect or a Disconnect won the race.
		_ = conn.Close()
		return fmt.Errorf("%w: connect to %s superseded", protocol.ErrTransportDisconnected, peer)
	}

	s.link = &link{conn: conn, reader: bufio.NewReader(conn)}
	s.state = StateConnected
	s.opts.Logger.Info("serial connected", "peer", peer)
	return nil
}

// Disconnect closes the open link, if any.
func (s *Serial) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.closeLocked()
	s.state = StateDisconnected
	return err
}

// IsConnected reports whether a link is open.
func (s *Serial) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link != nil
}

// State reports the connection state.
func (s *Serial) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peer reports the bonded peer address of the last Connect.
func (s *Serial) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// SendAction writes one command line and waits for one reply line.
func (s *Serial) SendAction(ctx context.Context, req protocol.Request, timeout time.Duration) (protocol.Response, error) {
	if err := req.Validate(); err != nil {
		return protocol.Response{}, err
	}
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}

	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if l == nil {
		return protocol.Response{}, protocol.ErrTransportDisconnected
	}
	if !l.inflight.TryLock() {
		return protocol.Response{}, protocol.ErrTransportBusy
	}
	defer l.inflight.Unlock()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := l.conn.SetDeadline(deadline); err != nil {
		s.fail(l, err)
		return protocol.Response{}, classifyNetError("set deadline", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := l.conn.Write([]byte(protocol.EncodeCommand(req))); err != nil {
		s.fail(l, err)
		return protocol.Response{}, s.sendError(ctx, "write command", err)
	}

	line, err := l.reader.ReadString('\n')
	if err != nil {
		s.fail(l, err)
		return protocol.Response{}, s.sendError(ctx, "read reply", err)
	}

	resp, err := protocol.DecodeResponse(line)
	if err != nil {
		return protocol.Response{}, err
	}
	if !resp.Success {
		return resp, classifyFailure(resp.Message)
	}
	return resp, nil
}

// fail closes l so a late reply can never pair with a later command.
func (s *Serial) fail(l *link, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != l {
		return
	}
	_ = l.conn.Close()
	s.link = nil
	s.state = StateError
	s.opts.Logger.Warn("serial link failed", "peer", s.peer, "error", cause.Error())
}

func (s *Serial) sendError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %s: %v", protocol.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", protocol.ErrTransportDisconnected, op, err)
}

func (s *Serial) closeLocked() error {
	if s.link == nil {
		return nil
	}
	err := s.link.conn.Close()
	s.link = nil
	return err
}

// classifyFailure maps a failed reply to a taxonomy kind by its fixed message.
func classifyFailure(message string) error {
	switch strings.TrimSpace(message) {
	case protocol.MsgAuthRequired:
		return fmt.Errorf("%w: %s", protocol.ErrAuthRequired, message)
	case protocol.MsgInvalidCredential:
		return fmt.Errorf("%w: %s", protocol.ErrInvalidCredential, message)
	default:
		return statusError(protocol.ErrExecutorFailure, message)
	}
}
