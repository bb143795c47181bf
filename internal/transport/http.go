package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rbright/powerctl/internal/auth"
	"github.com/rbright/powerctl/internal/protocol"
	"github.com/rbright/powerctl/internal/version"
)

const (
	// DefaultPort is the fixed port hosts listen on.
	DefaultPort = 8765
	// DefaultCommandTimeout bounds one networked action.
	DefaultCommandTimeout = 10 * time.Second
	// DefaultPingTimeout bounds one liveness probe.
	DefaultPingTimeout = 3 * time.Second

	maxResponseBytes = 1 << 20
)

// HTTPOptions tunes the networked transport.
type HTTPOptions struct {
	Port           int
	CommandTimeout time.Duration
	PingTimeout    time.Duration
	Client         *http.Client
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.Port <= 0 {
		o.Port = DefaultPort
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = DefaultPingTimeout
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	return o
}

// HTTP is the request/response transport. Every SendAction is self-contained;
// Connect only records the target and refreshes the reachability flag.
type HTTP struct {
	opts HTTPOptions

	mu        sync.Mutex
	baseURL   string
	reachable bool
}

// NewHTTP builds a transport addressed at target ("host", "host:port", or a URL).
func NewHTTP(target string, opts HTTPOptions) *HTTP {
	opts = opts.withDefaults()
	return &HTTP{opts: opts, baseURL: baseURL(target, opts.Port)}
}

// Connect records target and runs a liveness probe.
func (h *HTTP) Connect(ctx context.Context, target string) error {
	h.mu.Lock()
	h.baseURL = baseURL(target, h.opts.Port)
	h.mu.Unlock()

	_, err := h.Ping(ctx)
	return err
}

// Disconnect clears the reachability flag.
func (h *HTTP) Disconnect() error {
	h.setReachable(false)
	return nil
}

// IsConnected reports whether the last exchange reached the host.
func (h *HTTP) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reachable
}

// Target returns the base URL in use.
func (h *HTTP) Target() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.baseURL
}

// Ping issues the unauthenticated liveness probe.
func (h *HTTP) Ping(ctx context.Context) (protocol.Liveness, error) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Target()+"/ping", nil)
	if err != nil {
		return protocol.Liveness{}, fmt.Errorf("%w: build ping: %v", protocol.ErrUnreachable, err)
	}
	status, body, err := h.do(req)
	if err != nil {
		return protocol.Liveness{}, err
	}
	if status != http.StatusOK {
		return protocol.Liveness{}, fmt.Errorf("%w: ping returned %d", protocol.ErrMalformedResponse, status)
	}

	var live protocol.Liveness
	if err := json.Unmarshal(body, &live); err != nil {
		return protocol.Liveness{}, fmt.Errorf("%w: decode ping: %v", protocol.ErrMalformedResponse, err)
	}
	if live.Status != protocol.LivenessOK {
		return protocol.Liveness{}, fmt.Errorf("%w: ping status %q", protocol.ErrMalformedResponse, live.Status)
	}
	return live, nil
}

// SendAction performs one request/response exchange.
func (h *HTTP) SendAction(ctx context.Context, action protocol.Request, timeout time.Duration) (protocol.Response, error) {
	if err := action.Validate(); err != nil {
		return protocol.Response{}, err
	}
	if timeout <= 0 {
		timeout = h.opts.CommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := h.newActionRequest(ctx, action)
	if err != nil {
		return protocol.Response{}, err
	}
	status, body, err := h.do(req)
	if err != nil {
		return protocol.Response{}, err
	}
	return decodeHTTPResponse(status, body)
}

func (h *HTTP) newActionRequest(ctx context.Context, action protocol.Request) (*http.Request, error) {
	url := h.Target() + "/" + string(action.Action)

	if action.Action == protocol.ActionStatus {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set(auth.HeaderName, action.Key)
		return req, nil
	}

	payload, err := json.Marshal(protocol.BodyFor(action))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (h *HTTP) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := h.opts.Client.Do(req)
	if err != nil {
		h.setReachable(false)
		return 0, nil, classifyNetError(req.Method+" "+req.URL.Path, err)
	}
	defer resp.Body.Close()
	h.setReachable(true)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return 0, nil, fmt.Errorf("%w: read body: %v", protocol.ErrTimeout, err)
		}
		return 0, nil, fmt.Errorf("%w: read body: %v", protocol.ErrMalformedResponse, err)
	}
	return resp.StatusCode, body, nil
}

func (h *HTTP) setReachable(v bool) {
	h.mu.Lock()
	h.reachable = v
	h.mu.Unlock()
}

func decodeHTTPResponse(status int, body []byte) (protocol.Response, error) {
	var resp protocol.Response
	decodeErr := json.Unmarshal(body, &resp)

	switch status {
	case http.StatusOK:
		if len(bytes.TrimSpace(body)) == 0 || decodeErr != nil {
			return protocol.Response{}, fmt.Errorf("%w: %q", protocol.ErrMalformedResponse, truncate(body))
		}
		if resp.Status != nil && resp.Message == "" {
			resp.Success = true
		}
		return resp.Normalize(), nil
	case http.StatusUnauthorized:
		return protocol.Response{}, statusError(protocol.ErrAuthRequired, resp.Message)
	case http.StatusForbidden:
		return protocol.Response{}, statusError(protocol.ErrInvalidCredential, resp.Message)
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return protocol.Response{}, statusError(protocol.ErrUnsupportedAction, resp.Message)
	case http.StatusBadRequest:
		return protocol.Response{}, statusError(protocol.ErrMalformedCommand, resp.Message)
	case http.StatusInternalServerError:
		return protocol.Response{}, statusError(protocol.ErrExecutorFailure, resp.Message)
	default:
		return protocol.Response{}, fmt.Errorf("%w: unexpected status %d", protocol.ErrMalformedResponse, status)
	}
}

func statusError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

func truncate(body []byte) string {
	const limit = 120
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}

func baseURL(target string, port int) string {
	target = strings.TrimRight(strings.TrimSpace(target), "/")
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if _, _, err := net.SplitHostPort(target); err == nil {
		return "http://" + target
	}
	return "http://" + net.JoinHostPort(target, strconv.Itoa(port))
}
