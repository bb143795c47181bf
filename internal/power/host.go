package power

import (
	"context"
	"net"
	"os"
	"runtime"
	"time"
)

// Host is a point-in-time snapshot of host introspection data.
type Host struct {
	Hostname    string
	Platform    string
	Uptime      time.Duration
	TotalMemory uint64
	FreeMemory  uint64
	CPUs        int
	LocalIP     string
}

// Introspector supplies host data for the status action.
type Introspector interface {
	Inspect(ctx context.Context) (Host, error)
}

// SystemIntrospector reads host data from the running OS.
type SystemIntrospector struct{}

// Inspect gathers hostname, platform, uptime, memory, cores, and local address.
func (SystemIntrospector) Inspect(context.Context) (Host, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Host{}, err
	}

	host := Host{
		Hostname: hostname,
		Platform: runtime.GOOS,
		CPUs:     runtime.NumCPU(),
		LocalIP:  LocalIPv4(),
	}
	if err := readSystemInfo(&host); err != nil {
		return Host{}, err
	}
	return host, nil
}

// LocalIPv4 returns the first non-loopback IPv4 address of an up interface.
func LocalIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
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
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return ""
}
