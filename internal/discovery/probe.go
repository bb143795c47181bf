package discovery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/rbright/powerctl/internal/protocol"
	"github.com/rbright/powerctl/internal/version"
)

// Prober checks one address for the service signature.
type Prober interface {
	Probe(ctx context.Context, addr netip.Addr, port int, timeout time.Duration) (Device, bool)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, addr netip.Addr, port int, timeout time.Duration) (Device, bool)

func (f ProberFunc) Probe(ctx context.Context, addr netip.Addr, port int, timeout time.Duration) (Device, bool) {
	return f(ctx, addr, port, timeout)
}

// HTTPProber issues GET /ping and matches {"status":"ok"}.
type HTTPProber struct {
	Client *http.Client
}

func (p HTTPProber) Probe(ctx context.Context, addr netip.Addr, port int, timeout time.Duration) (Device, bool) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := "http://" + netip.AddrPortFrom(addr, uint16(port)).String() + "/ping"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Device{}, false
	}
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Device{}, false
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return Device{}, false
	}
	var live protocol.Liveness
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&live); err != nil {
		return Device{}, false
	}
	if live.Status != protocol.LivenessOK {
		return Device{}, false
	}

	hostname := live.Hostname
	if hostname == "" {
		hostname = addr.String()
	}
	return Device{
		IP:         addr,
		Port:       port,
		Hostname:   hostname,
		Latency:    latency,
		HasService: true,
	}, true
}
