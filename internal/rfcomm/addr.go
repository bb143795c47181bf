// Package rfcomm provides Bluetooth RFCOMM stream sockets as net.Conn and
// net.Listener. Only Linux has a working implementation.
package rfcomm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultChannel is the RFCOMM channel hosts listen on.
const DefaultChannel = 3

// ErrUnavailable reports that RFCOMM sockets cannot be used on this system.
var ErrUnavailable = errors.New("rfcomm: bluetooth sockets unavailable")

// Addr is an RFCOMM endpoint.
type Addr struct {
	MAC     [6]byte
	Channel uint8
}

func (a Addr) Network() string { return "rfcomm" }

func (a Addr) String() string {
	parts := make([]string, len(a.MAC))
	for i, b := range a.MAC {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":") + "/" + strconv.Itoa(int(a.Channel))
}

// ParseMAC parses "AA:BB:CC:DD:EE:FF" in display order.
func ParseMAC(raw string) ([6]byte, error) {
	var mac [6]byte
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 6 {
		return mac, fmt.Errorf("rfcomm: invalid address %q", raw)
	}
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil || len(part) != 2 {
			return mac, fmt.Errorf("rfcomm: invalid address %q", raw)
		}
		mac[i] = byte(v)
	}
	return mac, nil
}

// ParseTarget splits "AA:BB:CC:DD:EE:FF" or "AA:BB:CC:DD:EE:FF/5" into an
// address, falling back to channel when none is given.
func ParseTarget(raw string, channel uint8) (Addr, error) {
	macPart, chanPart, hasChannel := strings.Cut(strings.TrimSpace(raw), "/")
	mac, err := ParseMAC(macPart)
	if err != nil {
		return Addr{}, err
	}
	if hasChannel {
		v, err := strconv.ParseUint(chanPart, 10, 8)
		if err != nil || v < 1 || v > 30 {
			return Addr{}, fmt.Errorf("rfcomm: invalid channel %q", chanPart)
		}
		channel = uint8(v)
	}
	if channel == 0 {
		channel = DefaultChannel
	}
	return Addr{MAC: mac, Channel: channel}, nil
}

// Dialer opens RFCOMM connections to bonded peers.
type Dialer struct {
	// Channel is used when the target names none.
	Channel uint8
}
