package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceName is the mDNS service type hosts advertise.
	ServiceName = "_powerctl._tcp"
	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."
	// ServiceVersion is the TXT record protocol version.
	ServiceVersion = 1
	// DefaultBrowseTimeout bounds one mDNS browse window.
	DefaultBrowseTimeout = 2 * time.Second
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// MDNSConfig controls advertisement and browsing.
type MDNSConfig struct {
	Instance string
	Hostname string
	Port     int
	Timeout  time.Duration

	registerFn registerFunc
	browseFn   browseFunc
}

func (c MDNSConfig) withDefaults() MDNSConfig {
	out := c
	if out.Port <= 0 {
		out.Port = DefaultPort
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultBrowseTimeout
	}
	if out.Instance == "" {
		out.Instance = out.Hostname
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

// Candidate is an mDNS answer. It is only a hint until probed.
type Candidate struct {
	Addr     netip.Addr
	Port     int
	Hostname string
}

// Advertisement is a running mDNS registration.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers the host under ServiceName.
func Advertise(config MDNSConfig) (*Advertisement, error) {
	cfg := config.withDefaults()
	if strings.TrimSpace(cfg.Instance) == "" {
		return nil, errors.New("mdns instance name is required")
	}

	txt := []string{
		"hostname=" + cfg.Hostname,
		"version=" + strconv.Itoa(ServiceVersion),
	}
	server, err := cfg.registerFn(cfg.Instance, ServiceName, ServiceDomain, cfg.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	return &Advertisement{server: server}, nil
}

// Stop withdraws the registration.
func (a *Advertisement) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// Browse collects candidates for one browse window.
func Browse(ctx context.Context, config MDNSConfig) ([]Candidate, error) {
	cfg := config.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("create mDNS resolver: %w", err)
		}
		browse = resolver.Browse
	}

	scanCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collected := make(map[netip.Addr]Candidate)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-scanCtx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				for _, c := range parseEntry(entry) {
					collected[c.Addr] = c
				}
			}
		}
	}()

	if err := browse(scanCtx, ServiceName, ServiceDomain, entries); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("browse mDNS: %w", err)
	}

	<-scanCtx.Done()
	<-done

	out := make([]Candidate, 0, len(collected))
	for _, c := range collected {
		out = append(out, c)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func parseEntry(entry *zeroconf.ServiceEntry) []Candidate {
	if entry == nil {
		return nil
	}
	hostname := entry.Instance
	for _, field := range entry.Text {
		if v, ok := strings.CutPrefix(field, "hostname="); ok && v != "" {
			hostname = v
		}
	}

	out := make([]Candidate, 0, len(entry.AddrIPv4))
	for _, ip := range entry.AddrIPv4 {
		addr, ok := netip.AddrFromSlice(ip.To4())
		if !ok {
			continue
		}
		out = append(out, Candidate{Addr: addr, Port: entry.Port, Hostname: hostname})
	}
	return out
}
