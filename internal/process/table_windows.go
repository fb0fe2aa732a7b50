//go:build windows

package process

import (
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

type osTable struct{}

func (osTable) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}

// Kill ignores wait: console-less services cannot receive a polite close
// request, so termination is immediate.
func (t osTable) Kill(pid int, _ time.Duration) error {
	if !t.Alive(pid) {
		return ErrProcessGone
	}
	if err := terminateProcess(pid); err != nil {
		return err
	}
	waitGone(t, pid, 500*time.Millisecond)
	return nil
}

func (osTable) StartUnix(pid int) int64 { return getProcStartUnix(pid) }
