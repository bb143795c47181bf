// Package protocol defines power actions, wire payloads, and the serial line codec
// shared by the controller and the host.
package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Action is one of the fixed power operations or the status query.
type Action string

const (
	ActionShutdown  Action = "shutdown"
	ActionRestart   Action = "restart"
	ActionSleep     Action = "sleep"
	ActionHibernate Action = "hibernate"
	ActionLogout    Action = "logout"
	ActionCancel    Action = "cancel"
	ActionStatus    Action = "status"
)

var validActions = map[Action]struct{}{
	ActionShutdown:  {},
	ActionRestart:   {},
	ActionSleep:     {},
	ActionHibernate: {},
	ActionLogout:    {},
	ActionCancel:    {},
	ActionStatus:    {},
}

// Actions lists every action in display order.
func Actions() []Action {
	return []Action{
		ActionShutdown,
		ActionRestart,
		ActionSleep,
		ActionHibernate,
		ActionLogout,
		ActionCancel,
		ActionStatus,
	}
}

// ParseAction normalizes and validates an action name.
func ParseAction(raw string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := validActions[action]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAction, raw)
	}
	return action, nil
}

// AcceptsOptions reports whether delay/force are meaningful for the action.
func (a Action) AcceptsOptions() bool {
	return a == ActionShutdown || a == ActionRestart
}

// Options is the option bag carried by shutdown and restart.
type Options struct {
	Delay int  `json:"delay,omitempty"`
	Force bool `json:"force,omitempty"`
}

// IsZero reports whether no option is set.
func (o Options) IsZero() bool {
	return o.Delay == 0 && !o.Force
}

// Request is one action addressed to a host.
type Request struct {
	Action  Action
	Key     string
	Options Options
}

// Validate checks the action name and option ranges.
func (r Request) Validate() error {
	if _, ok := validActions[r.Action]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedAction, r.Action)
	}
	if r.Options.Delay < 0 {
		return fmt.Errorf("delay must be >= 0, got %d", r.Options.Delay)
	}
	return nil
}

// Body is the JSON request body of the networked transport.
type Body struct {
	Key   string `json:"key"`
	Delay *int   `json:"delay,omitempty"`
	Force *bool  `json:"force,omitempty"`
}

// BodyFor builds the networked request body for req.
func BodyFor(req Request) Body {
	body := Body{Key: req.Key}
	if req.Action.AcceptsOptions() {
		delay := req.Options.Delay
		force := req.Options.Force
		body.Delay = &delay
		body.Force = &force
	}
	return body
}

// Options extracts the option bag from a decoded body.
func (b Body) Options() Options {
	var opts Options
	if b.Delay != nil {
		opts.Delay = *b.Delay
	}
	if b.Force != nil {
		opts.Force = *b.Force
	}
	return opts
}

// Status is the host introspection payload returned by the status action.
type Status struct {
	Hostname        string  `json:"hostname"`
	Platform        string  `json:"platform"`
	Uptime          float64 `json:"uptime"`
	UptimeFormatted string  `json:"uptimeFormatted"`
	TotalMemory     uint64  `json:"totalMemory"`
	FreeMemory      uint64  `json:"freeMemory"`
	CPUs            int     `json:"cpus"`
	LocalIP         string  `json:"localIP"`
	Timestamp       string  `json:"timestamp"`
}

// Response is the outcome of one action.
type Response struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`

	*Status
}

// Normalize drops fields a failed response must never carry.
func (r Response) Normalize() Response {
	if !r.Success {
		r.ScheduledTime = nil
	}
	return r
}

// Liveness is the unauthenticated probe reply.
type Liveness struct {
	Status   string `json:"status"`
	Hostname string `json:"hostname,omitempty"`
}

// LivenessOK is the status token identifying a powerctl host.
const LivenessOK = "ok"

// Fixed host-side messages. Controllers classify serial failures by these.
const (
	MsgAuthRequired      = "Authentication required: Missing key"
	MsgInvalidCredential = "Authentication failed: Invalid key"
	MsgCancelled         = "Scheduled shutdown/restart cancelled"
)

// FormatUptime renders seconds as "1d 2h 3m".
func FormatUptime(seconds float64) string {
	total := int64(seconds)
	if total < 0 {
		total = 0
	}
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%dm", minutes))
	return strings.Join(parts, " ")
}
