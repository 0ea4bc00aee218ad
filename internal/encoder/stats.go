package encoder

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is a point-in-time resource sample for a running child.
type ProcessStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Stats samples the child's CPU and memory usage. It fails once the child
// has exited.
func (h *Handle) Stats() (ProcessStats, error) {
	if !h.Alive() {
		return ProcessStats{}, fmt.Errorf("process %d has exited", h.pid)
	}
	proc, err := process.NewProcess(int32(h.pid))
	if err != nil {
		return ProcessStats{}, fmt.Errorf("sampling process %d: %w", h.pid, err)
	}
	cpuPct, err := proc.CPUPercent()
	if err != nil {
		return ProcessStats{}, fmt.Errorf("sampling process %d: %w", h.pid, err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return ProcessStats{}, fmt.Errorf("sampling process %d: %w", h.pid, err)
	}
	return ProcessStats{CPUPercent: cpuPct, RSSBytes: mem.RSS}, nil
}
