package diag

import (
	"testing"
	"time"
)

func TestCollect(t *testing.T) {
	started := time.Now().Add(-3 * time.Second)
	snap := Collect(started)

	if snap.PID <= 0 {
		t.Errorf("PID = %d, want > 0", snap.PID)
	}
	if snap.Goroutines <= 0 {
		t.Errorf("Goroutines = %d, want > 0", snap.Goroutines)
	}
	if snap.UptimeSeconds < 3 {
		t.Errorf("UptimeSeconds = %f, want >= 3", snap.UptimeSeconds)
	}
	if !snap.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", snap.StartedAt, started)
	}
}
