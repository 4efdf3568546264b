// Package diag reports process-level health for the ops surface.
package diag

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time view of the bridge process.
type Snapshot struct {
	PID           int32     `json:"pid"`
	StartedAt     time.Time `json:"startedAt"`
	UptimeSeconds float64   `json:"uptimeSeconds"`
	Goroutines    int       `json:"goroutines"`
	RSSBytes      uint64    `json:"rssBytes,omitempty"`
	CPUPercent    float64   `json:"cpuPercent,omitempty"`
}

// Collect gathers a snapshot for the current process. Platform-specific
// readings that fail are left at zero rather than failing the whole call.
func Collect(startedAt time.Time) *Snapshot {
	snap := &Snapshot{
		PID:           int32(os.Getpid()),
		StartedAt:     startedAt,
		UptimeSeconds: time.Since(startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}

	proc, err := process.NewProcess(snap.PID)
	if err != nil {
		return snap
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		snap.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	return snap
}
