package discovery

import (
	"net/netip"
	"time"
)

// Policy is a named set of ranges with its probe timeout and batch size.
type Policy struct {
	Name      string
	Ranges    []netip.Prefix
	Timeout   time.Duration
	BatchSize int
}

var commonRanges = []netip.Prefix{
	netip.MustParsePrefix("192.168.1.0/24"),
	netip.MustParsePrefix("192.168.0.0/24"),
	netip.MustParsePrefix("192.168.43.0/24"),
	netip.MustParsePrefix("172.20.10.0/24"),
	netip.MustParsePrefix("10.0.0.0/24"),
}

var fallbackRanges = []netip.Prefix{
	netip.MustParsePrefix("192.168.2.0/24"),
	netip.MustParsePrefix("192.168.3.0/24"),
	netip.MustParsePrefix("192.168.4.0/24"),
	netip.MustParsePrefix("192.168.5.0/24"),
	netip.MustParsePrefix("192.168.6.0/24"),
	netip.MustParsePrefix("192.168.7.0/24"),
	netip.MustParsePrefix("192.168.8.0/24"),
	netip.MustParsePrefix("192.168.9.0/24"),
	netip.MustParsePrefix("192.168.10.0/24"),
	netip.MustParsePrefix("192.168.100.0/24"),
	netip.MustParsePrefix("192.168.137.0/24"),
	netip.MustParsePrefix("10.0.1.0/24"),
	netip.MustParsePrefix("10.1.1.0/24"),
	netip.MustParsePrefix("172.16.0.0/24"),
	netip.MustParsePrefix("192.168.88.0/24"),
}

// FastPolicy covers local interface ranges plus common home and hotspot ranges.
func FastPolicy(local []netip.Prefix) Policy {
	ranges := make([]netip.Prefix, 0, len(local)+len(commonRanges))
	ranges = append(ranges, local...)
	ranges = append(ranges, commonRanges...)
	return Policy{
		Name:      "fast",
		Ranges:    ranges,
		Timeout:   1000 * time.Millisecond,
		BatchSize: 50,
	}
}

// FallbackPolicy covers less common router defaults with a longer timeout.
func FallbackPolicy() Policy {
	return Policy{
		Name:      "fallback",
		Ranges:    append([]netip.Prefix(nil), fallbackRanges...),
		Timeout:   1500 * time.Millisecond,
		BatchSize: 30,
	}
}
