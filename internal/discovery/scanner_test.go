package discovery

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/powerctl/internal/protocol"
	"github.com/stretchr/testify/require"
)

// hostsProber answers for the given addresses with fixed latencies.
func hostsProber(hosts map[netip.Addr]Device) ProberFunc {
	return func(_ context.Context, addr netip.Addr, port int, _ time.Duration) (Device, bool) {
		d, ok := hosts[addr]
		if !ok {
			return Device{}, false
		}
		d.IP = addr
		d.Port = port
		d.HasService = true
		return d, true
	}
}

func noLocalRanges() []netip.Prefix { return nil }

func TestScanScenarioSingleHost(t *testing.T) {
	host := netip.MustParseAddr("192.168.43.100")
	scanner := NewScanner(Config{
		Prober:      hostsProber(map[netip.Addr]Device{host: {Hostname: "DESKTOP-A"}}),
		LocalRanges: noLocalRanges,
	})

	devices, err := scanner.Scan(context.Background(), []netip.Prefix{netip.MustParsePrefix("192.168.43.0/24")}, time.Second, 50, nil)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, host, devices[0].IP)
	require.Equal(t, "DESKTOP-A", devices[0].Hostname)
	require.True(t, devices[0].HasService)
	require.Equal(t, DefaultPort, devices[0].Port)
}

func TestScanNeverExceedsBatchSize(t *testing.T) {
	var inFlight, peak atomic.Int32
	var probed atomic.Int32
	prober := ProberFunc(func(context.Context, netip.Addr, int, time.Duration) (Device, bool) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		probed.Add(1)
		return Device{}, false
	})

	scanner := NewScanner(Config{Prober: prober, LocalRanges: noLocalRanges})
	_, err := scanner.Scan(context.Background(), []netip.Prefix{netip.MustParsePrefix("10.0.0.0/24")}, time.Second, 7, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(7))
	require.EqualValues(t, 254, probed.Load())
}

func TestScanResultsSortedByLatency(t *testing.T) {
	hosts := map[netip.Addr]Device{
		netip.MustParseAddr("10.0.0.9"):  {Latency: 30 * time.Millisecond},
		netip.MustParseAddr("10.0.0.3"):  {Latency: 5 * time.Millisecond},
		netip.MustParseAddr("10.0.0.77"): {Latency: 12 * time.Millisecond},
		netip.MustParseAddr("10.0.0.4"):  {Latency: 5 * time.Millisecond},
	}
	scanner := NewScanner(Config{Prober: hostsProber(hosts), LocalRanges: noLocalRanges})

	devices, err := scanner.Scan(context.Background(), []netip.Prefix{netip.MustParsePrefix("10.0.0.0/24")}, time.Second, 50, nil)
	require.NoError(t, err)
	require.Len(t, devices, 4)
	for i := 1; i < len(devices); i++ {
		require.LessOrEqual(t, devices[i-1].Latency, devices[i].Latency)
	}
	require.Equal(t, "10.0.0.3", devices[0].IP.String())
	require.Equal(t, "10.0.0.4", devices[1].IP.String())
}

func TestScanReportsProgressPerBatch(t *testing.T) {
	scanner := NewScanner(Config{
		Prober:      hostsProber(map[netip.Addr]Device{netip.MustParseAddr("192.168.1.20"): {}}),
		LocalRanges: noLocalRanges,
	})

	var reports []Progress
	_, err := scanner.Scan(context.Background(), []netip.Prefix{netip.MustParsePrefix("192.168.1.0/24")}, time.Second, 100, func(p Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	require.Equal(t, []int{100, 200, 254}, []int{reports[0].Probed, reports[1].Probed, reports[2].Probed})
	require.Equal(t, 254, reports[2].Total)
	require.InDelta(t, 1.0, reports[2].Fraction, 1e-9)
	require.Len(t, reports[0].Found, 1)
}

func TestScanDeduplicatesAndWidensRanges(t *testing.T) {
	var probed atomic.Int32
	prober := ProberFunc(func(context.Context, netip.Addr, int, time.Duration) (Device, bool) {
		probed.Add(1)
		return Device{}, false
	})
	scanner := NewScanner(Config{Prober: prober, LocalRanges: noLocalRanges})

	_, err := scanner.Scan(context.Background(), []netip.Prefix{
		netip.MustParsePrefix("192.168.1.0/24"),
		netip.MustParsePrefix("192.168.1.128/25"),
	}, time.Second, 50, nil)
	require.NoError(t, err)
	require.EqualValues(t, 254, probed.Load())

	_, err = scanner.Scan(context.Background(), []netip.Prefix{netip.MustParsePrefix("10.0.0.0/16")}, time.Second, 50, nil)
	require.Error(t, err)
}

func TestScanStopsBetweenBatchesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var probed atomic.Int32
	prober := ProberFunc(func(context.Context, netip.Addr, int, time.Duration) (Device, bool) {
		probed.Add(1)
		return Device{}, false
	})
	scanner := NewScanner(Config{Prober: prober, LocalRanges: noLocalRanges})

	_, err := scanner.Scan(ctx, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/24")}, time.Second, 10, func(Progress) {
		cancel()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 10, probed.Load())
}

func TestDiscoverFallsBackOnlyWhenFastFindsNothing(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	fallbackHost := netip.MustParseAddr("192.168.88.10")
	prober := ProberFunc(func(_ context.Context, addr netip.Addr, port int, _ time.Duration) (Device, bool) {
		block, _ := addr.Prefix(24)
		mu.Lock()
		seen[block.String()] = true
		mu.Unlock()
		if addr == fallbackHost {
			return Device{IP: addr, Port: port, HasService: true}, true
		}
		return Device{}, false
	})
	scanner := NewScanner(Config{Prober: prober, LocalRanges: noLocalRanges})

	devices, err := scanner.Discover(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, fallbackHost, devices[0].IP)
	require.True(t, seen["192.168.43.0/24"])
	require.True(t, seen["192.168.88.0/24"])
}

func TestDiscoverLabelsProgressPerPolicy(t *testing.T) {
	prober := ProberFunc(func(context.Context, netip.Addr, int, time.Duration) (Device, bool) {
		return Device{}, false
	})
	scanner := NewScanner(Config{Prober: prober, LocalRanges: noLocalRanges})

	var mu sync.Mutex
	last := map[string]int{}
	var order []string
	_, err := scanner.Discover(context.Background(), func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		if len(order) == 0 || order[len(order)-1] != p.Policy {
			order = append(order, p.Policy)
		}
		require.GreaterOrEqual(t, p.Probed, last[p.Policy], "probed count went backwards within %s", p.Policy)
		require.LessOrEqual(t, p.Probed, p.Total)
		last[p.Policy] = p.Probed
	})
	require.ErrorIs(t, err, protocol.ErrScanExhausted)
	require.Equal(t, []string{"fast", "fallback"}, order)
	require.Positive(t, last["fast"])
	require.Positive(t, last["fallback"])
}

func TestDiscoverSkipsFallbackWhenFastFinds(t *testing.T) {
	var fallbackProbed atomic.Bool
	prober := ProberFunc(func(_ context.Context, addr netip.Addr, port int, _ time.Duration) (Device, bool) {
		if addr.String() == "192.168.100.1" {
			fallbackProbed.Store(true)
		}
		if addr.String() == "172.20.10.2" {
			return Device{IP: addr, Port: port, HasService: true}, true
		}
		return Device{}, false
	})
	scanner := NewScanner(Config{Prober: prober, LocalRanges: noLocalRanges})

	devices, err := scanner.Discover(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.False(t, fallbackProbed.Load())
}

func TestDiscoverExhausted(t *testing.T) {
	prober := ProberFunc(func(context.Context, netip.Addr, int, time.Duration) (Device, bool) {
		return Device{}, false
	})
	scanner := NewScanner(Config{Prober: prober, LocalRanges: noLocalRanges})

	_, err := scanner.Discover(context.Background(), nil)
	require.ErrorIs(t, err, protocol.ErrScanExhausted)
}

func TestDiscoverProbesMDNSCandidates(t *testing.T) {
	hinted := netip.MustParseAddr("10.44.0.7")
	prober := hostsProber(map[netip.Addr]Device{hinted: {Hostname: "DESKTOP-B"}})
	scanner := NewScanner(Config{
		Prober:      prober,
		LocalRanges: noLocalRanges,
		Browse: func(context.Context) ([]Candidate, error) {
			return []Candidate{
				{Addr: hinted, Port: 8765, Hostname: "DESKTOP-B"},
				{Addr: netip.MustParseAddr("10.44.0.8"), Port: 8765, Hostname: "impostor"},
			}, nil
		},
	})

	devices, err := scanner.Discover(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, hinted, devices[0].IP)
	require.Equal(t, "DESKTOP-B", devices[0].Hostname)
}

func TestHTTPProberMatchesSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			_, _ = w.Write([]byte(`{"status":"ok","hostname":"DESKTOP-A"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	addr, port := serverAddr(t, srv)
	device, ok := HTTPProber{}.Probe(context.Background(), addr, port, time.Second)
	require.True(t, ok)
	require.Equal(t, "DESKTOP-A", device.Hostname)
	require.True(t, device.HasService)
	require.Positive(t, device.Latency)
}

func TestHTTPProberRejectsOtherServices(t *testing.T) {
	bodies := []string{`{"status":"healthy"}`, `not json`, ``}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		addr, port := serverAddr(t, srv)
		_, ok := HTTPProber{}.Probe(context.Background(), addr, port, time.Second)
		require.False(t, ok, body)
		srv.Close()
	}
}

func TestPolicies(t *testing.T) {
	fast := FastPolicy([]netip.Prefix{netip.MustParsePrefix("10.9.9.0/24")})
	require.Equal(t, time.Second, fast.Timeout)
	require.Equal(t, 50, fast.BatchSize)
	require.Equal(t, "10.9.9.0/24", fast.Ranges[0].String())
	require.Contains(t, fast.Ranges, netip.MustParsePrefix("192.168.43.0/24"))

	fallback := FallbackPolicy()
	require.Equal(t, 1500*time.Millisecond, fallback.Timeout)
	require.Equal(t, 30, fallback.BatchSize)
	require.Len(t, fallback.Ranges, 15)
}

func serverAddr(t *testing.T, srv *httptest.Server) (netip.Addr, int) {
	t.Helper()
	host, rawPort, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(rawPort)
	require.NoError(t, err)
	return netip.MustParseAddr(host), port
}
