// Package discovery finds powerctl hosts on the local network.
package discovery

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/rbright/powerctl/internal/protocol"
)

const (
	// DefaultPort is the fixed port probed on every candidate address.
	DefaultPort   = 8765
	hostsPerRange = 254
)

// Device is a host that answered the liveness probe with the service signature.
type Device struct {
	IP         netip.Addr    `json:"ip" yaml:"ip"`
	Port       int           `json:"port" yaml:"port"`
	Hostname   string        `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Latency    time.Duration `json:"latency" yaml:"latency"`
	HasService bool          `json:"hasService" yaml:"has_service"`
}

// Address returns host:port for the device.
func (d Device) Address() string {
	return netip.AddrPortFrom(d.IP, uint16(d.Port)).String()
}

// Progress is reported after every completed batch. Probed and Total count
// within one policy; Discover starts them over, under a new Policy name,
// when it falls back.
type Progress struct {
	Policy   string
	Probed   int
	Total    int
	Fraction float64
	Found    []Device
}

// ProgressFunc receives scan progress. It is called from the scanning goroutine.
type ProgressFunc func(Progress)

// Config wires the scanner's collaborators. Zero values use the real network.
type Config struct {
	Port        int
	Prober      Prober
	LocalRanges func() []netip.Prefix
	Browse      func(ctx context.Context) ([]Candidate, error)
	Logger      *slog.Logger
}

func (c Config) withDefaults() Config {
	out := c
	if out.Port <= 0 {
		out.Port = DefaultPort
	}
	if out.Prober == nil {
		out.Prober = HTTPProber{}
	}
	if out.LocalRanges == nil {
		out.LocalRanges = LocalRanges
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.DiscardHandler)
	}
	return out
}

// Scanner probes /24 ranges in sequential, bounded batches. It keeps no state
// between scans.
type Scanner struct {
	cfg Config
}

// NewScanner builds a scanner.
func NewScanner(cfg Config) *Scanner {
	return &Scanner{cfg: cfg.withDefaults()}
}

// session is the working state of one scan.
type session struct {
	hosts    []netip.Addr
	timeout  time.Duration
	batch    int
	probed   int
	found    []Device
	progress ProgressFunc
}

// Scan probes every host address of ranges and returns matches sorted by latency.
// Cancellation is checked between batches.
func (s *Scanner) Scan(ctx context.Context, ranges []netip.Prefix, timeout time.Duration, batchSize int, onProgress ProgressFunc) ([]Device, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", batchSize)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("probe timeout must be > 0, got %s", timeout)
	}

	blocks, err := normalizeRanges(ranges)
	if err != nil {
		return nil, err
	}

	sess := &session{timeout: timeout, batch: batchSize, progress: onProgress}
	for _, block := range blocks {
		sess.hosts = append(sess.hosts, hostAddrs(block)...)
	}

	s.cfg.Logger.Debug("scan started", "ranges", len(blocks), "hosts", len(sess.hosts), "batch", batchSize)
	if err := s.run(ctx, sess); err != nil {
		return sortDevices(sess.found), err
	}
	return sortDevices(sess.found), nil
}

// ScanRange scans one range with the fast policy's timeout and batch size.
func (s *Scanner) ScanRange(ctx context.Context, prefix netip.Prefix, onProgress ProgressFunc) ([]Device, error) {
	fast := FastPolicy(nil)
	return s.Scan(ctx, []netip.Prefix{prefix}, fast.Timeout, fast.BatchSize, onProgress)
}

// Discover runs the fast policy and, only when it finds nothing, the fallback.
// mDNS candidates are probed first and their ranges join the fast policy.
func (s *Scanner) Discover(ctx context.Context, onProgress ProgressFunc) ([]Device, error) {
	local := s.cfg.LocalRanges()
	hinted, hintRanges := s.probeHints(ctx)

	fast := FastPolicy(slices.Concat(local, hintRanges))
	devices, err := s.runPolicy(ctx, fast, onProgress)
	if err != nil {
		return nil, err
	}
	devices = mergeDevices(hinted, devices)
	if len(devices) > 0 {
		return devices, nil
	}

	s.cfg.Logger.Info("fast scan found nothing, trying fallback ranges")
	devices, err = s.runPolicy(ctx, FallbackPolicy(), onProgress)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, protocol.ErrScanExhausted
	}
	return devices, nil
}

func (s *Scanner) runPolicy(ctx context.Context, policy Policy, onProgress ProgressFunc) ([]Device, error) {
	s.cfg.Logger.Debug("scan policy", "policy", policy.Name, "ranges", len(policy.Ranges))
	report := onProgress
	if onProgress != nil {
		report = func(p Progress) {
			p.Policy = policy.Name
			onProgress(p)
		}
	}
	return s.Scan(ctx, policy.Ranges, policy.Timeout, policy.BatchSize, report)
}

func (s *Scanner) probeHints(ctx context.Context) ([]Device, []netip.Prefix) {
	if s.cfg.Browse == nil {
		return nil, nil
	}
	candidates, err := s.cfg.Browse(ctx)
	if err != nil {
		s.cfg.Logger.Warn("mdns browse failed", "error", err.Error())
		return nil, nil
	}

	timeout := FastPolicy(nil).Timeout
	var (
		found  []Device
		ranges []netip.Prefix
	)
	for _, c := range candidates {
		if !c.Addr.Is4() {
			continue
		}
		if block, err := c.Addr.Prefix(24); err == nil {
			ranges = append(ranges, block)
		}
		port := c.Port
		if port <= 0 {
			port = s.cfg.Port
		}
		if device, ok := s.cfg.Prober.Probe(ctx, c.Addr, port, timeout); ok {
			found = append(found, device)
		}
	}
	return found, ranges
}

func (s *Scanner) run(ctx context.Context, sess *session) error {
	total := len(sess.hosts)
	var mu sync.Mutex

	for start := 0; start < total; start += sess.batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+sess.batch, total)
		var wg sync.WaitGroup
		for _, addr := range sess.hosts[start:end] {
			wg.Add(1)
			go func(addr netip.Addr) {
				defer wg.Done()
				device, ok := s.cfg.Prober.Probe(ctx, addr, s.cfg.Port, sess.timeout)
				if !ok || !device.HasService {
					return
				}
				mu.Lock()
				sess.found = append(sess.found, device)
				mu.Unlock()
			}(addr)
		}
		wg.Wait()

		sess.probed = end
		if sess.progress != nil {
			mu.Lock()
			found := sortDevices(slices.Clone(sess.found))
			mu.Unlock()
			sess.progress(Progress{
				Probed:   sess.probed,
				Total:    total,
				Fraction: float64(sess.probed) / float64(total),
				Found:    found,
			})
		}
	}
	return nil
}

// normalizeRanges widens narrow prefixes to their /24, rejects wider ones, and
// drops duplicates while keeping order.
func normalizeRanges(ranges []netip.Prefix) ([]netip.Prefix, error) {
	seen := make(map[netip.Prefix]struct{}, len(ranges))
	out := make([]netip.Prefix, 0, len(ranges))
	for _, r := range ranges {
		if !r.IsValid() || !r.Addr().Is4() {
			return nil, fmt.Errorf("scan range %s: only IPv4 ranges are supported", r)
		}
		if r.Bits() < 24 {
			return nil, fmt.Errorf("scan range %s: wider than /24", r)
		}
		block, err := r.Addr().Prefix(24)
		if err != nil {
			return nil, fmt.Errorf("scan range %s: %w", r, err)
		}
		if _, ok := seen[block]; ok {
			continue
		}
		seen[block] = struct{}{}
		out = append(out, block)
	}
	return out, nil
}

// hostAddrs returns .1 through .254 of a /24 block.
func hostAddrs(block netip.Prefix) []netip.Addr {
	base := block.Masked().Addr().As4()
	addrs := make([]netip.Addr, 0, hostsPerRange)
	for i := 1; i <= hostsPerRange; i++ {
		base[3] = byte(i)
		addrs = append(addrs, netip.AddrFrom4(base))
	}
	return addrs
}

func sortDevices(devices []Device) []Device {
	slices.SortFunc(devices, func(a, b Device) int {
		if c := cmp.Compare(a.Latency, b.Latency); c != 0 {
			return c
		}
		return a.IP.Compare(b.IP)
	})
	return devices
}

func mergeDevices(first, second []Device) []Device {
	seen := make(map[netip.Addr]struct{}, len(first)+len(second))
	out := make([]Device, 0, len(first)+len(second))
	for _, d := range append(slices.Clone(first), second...) {
		if _, ok := seen[d.IP]; ok {
			continue
		}
		seen[d.IP] = struct{}{}
		out = append(out, d)
	}
	return sortDevices(out)
}

// LocalRanges returns the /24 blocks of the host's up, non-loopback IPv4 interfaces.
func LocalRanges() []netip.Prefix {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []netip.Prefix
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP.To4())
			if !ok {
				continue
			}
			if block, err := ip.Prefix(24); err == nil {
				out = append(out, block)
			}
		}
	}
	return out
}
