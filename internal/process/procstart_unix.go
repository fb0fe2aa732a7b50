//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/host"
	gopsproc "github.com/shirou/gopsutil/v4/process"
	sysconf "github.com/tklauser/go-sysconf"
)

// procStat holds the fields of /proc/<pid>/stat the table relies on.
type procStat struct {
	state      byte  // R, S, D, Z, ...
	startTicks int64 // clock ticks after boot
}

// parseProcStat parses one /proc/<pid>/stat line. The command name is
// parenthesised and may itself contain spaces or parentheses, so fields are
// counted from the last ')'.
func parseProcStat(line string) (procStat, error) {
	end := strings.LastIndexByte(line, ')')
	if end < 0 {
		return procStat{}, errors.New("stat line has no command name")
	}
	f := strings.Fields(line[end+1:])
	// f[0] is field 3 (state), starttime is field 22
	if len(f) < 20 {
		return procStat{}, fmt.Errorf("stat line has %d fields after the command name", len(f))
	}
	if len(f[0]) != 1 {
		return procStat{}, fmt.Errorf("bad process state %q", f[0])
	}
	ticks, err := strconv.ParseInt(f[19], 10, 64)
	if err != nil || ticks < 0 {
		return procStat{}, fmt.Errorf("bad starttime %q", f[19])
	}
	return procStat{state: f[0][0], startTicks: ticks}, nil
}

func readProcStat(pid int) (procStat, error) {
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return procStat{}, err
	}
	return parseProcStat(string(b))
}

var clockTicks = sync.OnceValue(func() int64 {
	clk, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || clk <= 0 {
		return 100
	}
	return clk
})

// getProcStartUnix returns when pid started, in Unix seconds, or 0.
// On Linux the value comes from /proc plus the boot time; elsewhere from
// gopsutil's CreateTime.
func getProcStartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	if runtime.GOOS == "linux" {
		st, err := readProcStat(pid)
		if err != nil {
			return 0
		}
		boot, err := host.BootTime()
		if err != nil || boot == 0 {
			return 0
		}
		return int64(boot) + st.startTicks/clockTicks()
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
