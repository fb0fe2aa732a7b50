//go:build windows

package process

import (
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/windows"
)

// getProcStartUnix returns when pid started, in Unix seconds, or 0.
func getProcStartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err == nil {
		defer func() { _ = windows.CloseHandle(h) }()
		var creation, exit, kernel, user windows.Filetime
		if windows.GetProcessTimes(h, &creation, &exit, &kernel, &user) == nil {
			return time.Unix(0, creation.Nanoseconds()).Unix()
		}
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil {
		return 0
	}
	return ms / 1000
}
