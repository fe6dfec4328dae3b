package util

import (
	"fmt"
	"os"
	"runtime"
)

// SystemInfo describes the host the process runs on
type SystemInfo struct {
	Hostname    string `json:"hostname" yaml:"hostname"`
	OS          string `json:"os" yaml:"os"`
	Arch        string `json:"arch" yaml:"arch"`
	GoVersion   string `json:"go_version" yaml:"go_version"`
	Cores       int    `json:"cores" yaml:"cores"`
	MemoryTotal uint64 `json:"memory_total" yaml:"memory_total"` // bytes, 0 if unknown
	MemoryFree  uint64 `json:"memory_free" yaml:"memory_free"`   // bytes, 0 if unknown
	Uptime      int64  `json:"uptime" yaml:"uptime"`             // seconds, 0 if unknown
}

// MemoryUsed returns the physical memory in use
func (s SystemInfo) MemoryUsed() uint64 {
	if s.MemoryFree > s.MemoryTotal {
		return 0
	}
	return s.MemoryTotal - s.MemoryFree
}

// NbCores returns the number of usable cores, at least 1
func NbCores() int {
	return max(1, runtime.GOMAXPROCS(0))
}

// GetSystemInfo collects information about the host. Memory and uptime are
// only filled in on platforms that expose them.
func GetSystemInfo() SystemInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	info := SystemInfo{
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		Cores:     NbCores(),
	}
	fillMemoryInfo(&info)
	return info
}

// FormatBytes renders a byte count with a binary unit, e.g. "1.5 GiB"
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
