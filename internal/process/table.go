package process

import (
	"errors"
	"time"
)

// ErrProcessGone is returned by Table.Kill when the pid is not in the process table.
var ErrProcessGone = errors.New("process not found")

// Table is the OS process table as seen by the service manager.
// Implementations never cache results; every call probes the OS.
type Table interface {
	// Alive reports whether pid exists and is not a zombie.
	Alive(pid int) bool
	// Kill terminates pid together with its process group. When wait is
	// positive the process is first asked to exit and force-killed only if
	// it is still alive after wait.
	Kill(pid int, wait time.Duration) error
	// StartUnix returns the process start time in Unix seconds, or 0 when unknown.
	StartUnix(pid int) int64
}

// NewTable returns the backend for the running OS.
func NewTable() Table { return osTable{} }

// waitGone polls t until pid disappears or d elapses.
func waitGone(t Table, pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if !t.Alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(20 * time.Millisecond)
	}
}
