// Package dispatch turns user action requests into transport calls, applying
// countdown, cancel, and validation rules.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/powerctl/internal/fsm"
	"github.com/rbright/powerctl/internal/protocol"
	"github.com/rbright/powerctl/internal/transport"
)

// Mode selects the active transport.
type Mode string

const (
	ModeNetwork Mode = "network"
	ModeSerial  Mode = "serial"
)

// ErrNoTarget is returned when no host or peer has been selected.
var ErrNoTarget = errors.New("dispatch: no host selected")

// Target is what the validator sees before any state changes.
type Target struct {
	Mode      Mode
	Address   string
	Peer      string
	Connected bool
	Key       string
}

// Validator is the precondition checked before a slot transitions.
type Validator func(Target) error

// DefaultValidator requires a selected target and a non-empty credential.
func DefaultValidator(t Target) error {
	switch t.Mode {
	case ModeSerial:
		if t.Peer == "" || !t.Connected {
			return fmt.Errorf("%w: no connected peer", ErrNoTarget)
		}
	default:
		if strings.TrimSpace(t.Address) == "" {
			return fmt.Errorf("%w: no host address", ErrNoTarget)
		}
	}
	if strings.TrimSpace(t.Key) == "" {
		return fmt.Errorf("%w: no key configured", protocol.ErrAuthRequired)
	}
	return nil
}

// SerialTransport is the persistent transport owned by the dispatcher.
type SerialTransport interface {
	transport.Transport
	Peer() string
}

// Config wires a dispatcher.
type Config struct {
	Key            string
	CommandTimeout time.Duration
	SerialTimeout  time.Duration
	TickInterval   time.Duration

	// NewNetwork builds the networked transport for an address.
	NewNetwork func(address string) transport.Transport
	Serial     SerialTransport
	Validator  Validator
	Observer   Observer
	Logger     *slog.Logger
}

func (c Config) withDefaults() Config {
	out := c
	if out.TickInterval <= 0 {
		out.TickInterval = time.Second
	}
	if out.NewNetwork == nil {
		timeout := out.CommandTimeout
		out.NewNetwork = func(address string) transport.Transport {
			return transport.NewHTTP(address, transport.HTTPOptions{CommandTimeout: timeout})
		}
	}
	if out.Validator == nil {
		out.Validator = DefaultValidator
	}
	if out.Observer == nil {
		out.Observer = noopObserver{}
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.DiscardHandler)
	}
	return out
}

// Result is the outcome of one Invoke.
type Result struct {
	Action   protocol.Action
	Response protocol.Response
	// Cancelled is set when a countdown ended without sending.
	Cancelled bool
	// CancelledPending is set on the invocation that cancelled a countdown.
	CancelledPending bool
}

// countdown is the invalidatable handle of one pending countdown.
type countdown struct {
	stop chan struct{}
	once sync.Once
}

func newCountdown() *countdown {
	return &countdown{stop: make(chan struct{})}
}

func (c *countdown) invalidate() {
	c.once.Do(func() { close(c.stop) })
}

type slot struct {
	state  fsm.State
	handle *countdown
}

// Dispatcher owns per-action slots and the active transport.
type Dispatcher struct {
	cfg Config

	mu      sync.Mutex
	mode    Mode
	address string
	network transport.Transport
	slots   map[protocol.Action]*slot
}

// New builds a dispatcher in network mode with no target selected.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg.withDefaults(),
		mode:  ModeNetwork,
		slots: make(map[protocol.Action]*slot),
	}
}

// UseNetwork selects the networked transport addressed at address.
func (d *Dispatcher) UseNetwork(address string) {
	d.mu.Lock()
	d.mode = ModeNetwork
	d.address = strings.TrimSpace(address)
	d.network = d.cfg.NewNetwork(d.address)
	serial := d.cfg.Serial
	d.mu.Unlock()

	if serial != nil && serial.IsConnected() {
		_ = serial.Disconnect()
	}
	d.cfg.Logger.Debug("transport selected", "transport", string(ModeNetwork), "remote", address)
}

// UseSerial selects the serial transport and connects it to peer.
func (d *Dispatcher) UseSerial(ctx context.Context, peer string) error {
	d.mu.Lock()
	serial := d.cfg.Serial
	if serial == nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: serial transport unavailable", protocol.ErrTransportDisconnected)
	}
	d.mode = ModeSerial
	d.mu.Unlock()

	d.cfg.Logger.Debug("transport selected", "transport", string(ModeSerial), "remote", peer)
	return serial.Connect(ctx, peer)
}

// Close disconnects the serial transport.
func (d *Dispatcher) Close() error {
	if d.cfg.Serial == nil {
		return nil
	}
	return d.cfg.Serial.Disconnect()
}

// State reports the slot state of action.
func (d *Dispatcher) State(action protocol.Action) fsm.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slotLocked(action).state
}

// Invoke runs action through its slot. It blocks through any countdown.
func (d *Dispatcher) Invoke(ctx context.Context, action protocol.Action, opts protocol.Options) (Result, error) {
	result := Result{Action: action}
	if _, err := protocol.ParseAction(string(action)); err != nil {
		return result, err
	}
	if !action.AcceptsOptions() {
		opts = protocol.Options{}
	}
	if opts.Delay < 0 {
		return result, fmt.Errorf("delay must be >= 0, got %d", opts.Delay)
	}
	if action == protocol.ActionCancel {
		return d.cancel(ctx)
	}

	// A pending countdown can always be withdrawn; validation only gates
	// entering CountingDown or Executing.
	d.mu.Lock()
	s := d.slotLocked(action)
	switch s.state {
	case fsm.StateCountingDown:
		s.handle.invalidate()
		s.handle = nil
		d.transitionLocked(s, fsm.EventCancel)
		d.mu.Unlock()
		d.cfg.Observer.OnCancel(action)
		d.cfg.Logger.Info("countdown cancelled", "action", string(action))
		result.Cancelled = true
		result.CancelledPending = true
		return result, nil
	case fsm.StateExecuting:
		d.mu.Unlock()
		return result, fmt.Errorf("%w: %s already in progress", protocol.ErrTransportBusy, action)
	}
	if err := d.cfg.Validator(d.targetLocked()); err != nil {
		d.mu.Unlock()
		return result, err
	}

	if opts.Delay == 0 {
		d.transitionLocked(s, fsm.EventFire)
		d.mu.Unlock()
		return d.execute(ctx, action, opts)
	}

	handle := newCountdown()
	s.handle = handle
	d.transitionLocked(s, fsm.EventArm)
	d.mu.Unlock()

	if !d.countDown(ctx, action, opts.Delay, s, handle) {
		result.Cancelled = true
		return result, nil
	}
	opts.Delay = 0
	return d.execute(ctx, action, opts)
}

// countDown ticks until zero and reports whether this handle reached Executing.
func (d *Dispatcher) countDown(ctx context.Context, action protocol.Action, delay int, s *slot, handle *countdown) bool {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	d.cfg.Logger.Info("countdown started", "action", string(action), "delay_s", delay)
	remaining := delay
	d.cfg.Observer.OnTick(action, remaining)

	for remaining > 0 {
		select {
		case <-handle.stop:
			return false
		case <-ctx.Done():
			d.mu.Lock()
			owned := s.handle == handle
			if owned {
				handle.invalidate()
				s.handle = nil
				d.transitionLocked(s, fsm.EventCancel)
			}
			d.mu.Unlock()
			if owned {
				d.cfg.Observer.OnCancel(action)
			}
			return false
		case <-ticker.C:
			remaining--
			if remaining > 0 {
				d.cfg.Observer.OnTick(action, remaining)
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if s.handle != handle {
		return false
	}
	s.handle = nil
	d.transitionLocked(s, fsm.EventFire)
	return true
}

func (d *Dispatcher) execute(ctx context.Context, action protocol.Action, opts protocol.Options) (Result, error) {
	result := Result{Action: action}
	d.cfg.Observer.OnExecute(action)

	resp, err := d.send(ctx, protocol.Request{Action: action, Key: d.cfg.Key, Options: opts})

	d.mu.Lock()
	d.transitionLocked(d.slotLocked(action), fsm.EventDone)
	d.mu.Unlock()

	d.cfg.Observer.OnResult(action, resp, err)
	if err != nil {
		d.cfg.Logger.Warn("action failed", "action", string(action), "error", err.Error())
		return result, err
	}
	d.cfg.Logger.Info("action sent", "action", string(action), "success", resp.Success)
	result.Response = resp
	return result, nil
}

// cancel aborts local countdowns and asks the host to drop scheduled work.
// Host-side "nothing pending" failures still count as success.
func (d *Dispatcher) cancel(ctx context.Context) (Result, error) {
	result := Result{Action: protocol.ActionCancel}

	var aborted []protocol.Action
	d.mu.Lock()
	for action, s := range d.slots {
		if s.state != fsm.StateCountingDown {
			continue
		}
		s.handle.invalidate()
		s.handle = nil
		d.transitionLocked(s, fsm.EventCancel)
		aborted = append(aborted, action)
	}
	target := d.targetLocked()
	d.mu.Unlock()
	for _, action := range aborted {
		d.cfg.Observer.OnCancel(action)
	}
	result.CancelledPending = len(aborted) > 0

	if err := d.cfg.Validator(target); err != nil {
		if !result.CancelledPending {
			return result, err
		}
		// Local countdowns are gone; the host cannot be reached to drop
		// anything it scheduled itself.
		d.cfg.Logger.Warn("cancel not sent to host", "aborted", len(aborted), "error", err.Error())
		resp := protocol.Response{Success: true, Message: protocol.MsgCancelled}
		d.cfg.Observer.OnResult(protocol.ActionCancel, resp, nil)
		result.Response = resp
		return result, nil
	}

	resp, err := d.send(ctx, protocol.Request{Action: protocol.ActionCancel, Key: d.cfg.Key})
	if err != nil && !errors.Is(err, protocol.ErrExecutorFailure) {
		d.cfg.Observer.OnResult(protocol.ActionCancel, resp, err)
		return result, err
	}
	resp = protocol.Response{Success: true, Message: protocol.MsgCancelled}
	d.cfg.Observer.OnResult(protocol.ActionCancel, resp, nil)
	result.Response = resp
	return result, nil
}

func (d *Dispatcher) send(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	d.mu.Lock()
	mode := d.mode
	network := d.network
	d.mu.Unlock()

	switch mode {
	case ModeSerial:
		if d.cfg.Serial == nil {
			return protocol.Response{}, protocol.ErrTransportDisconnected
		}
		return d.cfg.Serial.SendAction(ctx, req, d.cfg.SerialTimeout)
	default:
		if network == nil {
			return protocol.Response{}, ErrNoTarget
		}
		return network.SendAction(ctx, req, d.cfg.CommandTimeout)
	}
}

func (d *Dispatcher) targetLocked() Target {
	t := Target{Mode: d.mode, Address: d.address, Key: d.cfg.Key}
	if d.cfg.Serial != nil {
		t.Peer = d.cfg.Serial.Peer()
		t.Connected = d.cfg.Serial.IsConnected()
	}
	return t
}

func (d *Dispatcher) slotLocked(action protocol.Action) *slot {
	s, ok := d.slots[action]
	if !ok {
		s = &slot{state: fsm.StateIdle}
		d.slots[action] = s
	}
	return s
}

func (d *Dispatcher) transitionLocked(s *slot, event fsm.Event) {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		d.cfg.Logger.Error("slot transition rejected", "state", string(s.state), "event", string(event), "error", err.Error())
		return
	}
	s.state = next
}
