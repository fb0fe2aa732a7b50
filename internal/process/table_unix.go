//go:build !windows

package process

import (
	"errors"
	"runtime"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

type osTable struct{}

func (osTable) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	if err != nil || !ok {
		return false
	}
	return !isZombie(pid)
}

func (t osTable) Kill(pid int, wait time.Duration) error {
	if !t.Alive(pid) {
		return ErrProcessGone
	}
	if wait > 0 {
		if err := signalGroup(pid, syscall.SIGTERM); err != nil {
			return err
		}
		if waitGone(t, pid, wait) {
			return nil
		}
	}
	if err := signalGroup(pid, syscall.SIGKILL); err != nil {
		return err
	}
	waitGone(t, pid, 500*time.Millisecond)
	return nil
}

func (osTable) StartUnix(pid int) int64 { return getProcStartUnix(pid) }

// signalGroup signals the process group led by pid (services run in their own
// session) and falls back to the single pid when no such group exists.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if err == nil {
		return nil
	}
	err = syscall.Kill(pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return ErrProcessGone
	}
	return err
}

func isZombie(pid int) bool {
	if runtime.GOOS == "linux" {
		st, err := readProcStat(pid)
		return err == nil && st.state == 'Z'
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	st, err := p.Status()
	if err != nil {
		return false
	}
	for _, s := range st {
		if s == gopsproc.Zombie {
			return true
		}
	}
	return false
}
