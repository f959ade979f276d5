package instance

import "time"

// TestSetStatus forces i's status without going through Start/Stop, for
// tests in other packages (e.g. internal/health) that exercise the status
// machine without a real subprocess.
func TestSetStatus(i *Instance, s Status) {
	i.setStatus(s)
}

// TestSetStartedAt forces i's recorded start time, for tests that need to
// control elapsed-since-start without waiting in real time.
func TestSetStartedAt(i *Instance, t time.Time) {
	i.statsMu.Lock()
	i.stats.StartedAt = t
	i.statsMu.Unlock()
}
