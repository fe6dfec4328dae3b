package util

import "golang.org/x/sys/unix"

func fillMemoryInfo(info *SystemInfo) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	info.MemoryTotal = uint64(si.Totalram) * unit
	info.MemoryFree = uint64(si.Freeram) * unit
	info.Uptime = int64(si.Uptime)
}
