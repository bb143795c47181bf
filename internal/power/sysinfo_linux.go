//go:build linux

package power

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

func readSystemInfo(host *Host) error {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return fmt.Errorf("sysinfo: %w", err)
	}

	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	host.Uptime = time.Duration(int64(info.Uptime)) * time.Second
	host.TotalMemory = uint64(info.Totalram) * unit
	host.FreeMemory = uint64(info.Freeram) * unit
	return nil
}
