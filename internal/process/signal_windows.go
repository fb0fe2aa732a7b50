//go:build windows

package process

import "golang.org/x/sys/windows"

// terminateProcess ends pid with exit code 1.
func terminateProcess(pid int) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return ErrProcessGone
	}
	defer func() { _ = windows.CloseHandle(h) }()
	return windows.TerminateProcess(h, 1)
}
