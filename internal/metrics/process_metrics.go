package metrics

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceUsage is a point-in-time resource snapshot of one service process.
type ResourceUsage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

var (
	serviceCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fampp",
			Subsystem: "service",
			Name:      "cpu_percent",
			Help:      "CPU usage of the service process since it started.",
		}, []string{"name"},
	)
	serviceMemoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fampp",
			Subsystem: "service",
			Name:      "memory_mb",
			Help:      "Resident memory of the service process in megabytes.",
		}, []string{"name"},
	)
	serviceNumThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fampp",
			Subsystem: "service",
			Name:      "threads",
			Help:      "Number of threads of the service process.",
		}, []string{"name"},
	)
)

// Sample reads CPU and memory usage for pid and, when metrics are
// registered, publishes them under name.
func Sample(name string, pid int) (ResourceUsage, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("failed to create process handle: %w", err)
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		slog.Debug("Failed to get CPU percent", "name", name, "pid", pid, "error", err)
		cpuPercent = 0
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	numThreads, err := proc.NumThreads()
	if err != nil {
		slog.Debug("Failed to get thread count", "name", name, "pid", pid, "error", err)
		numThreads = 0
	}

	u := ResourceUsage{
		PID:        int32(pid),
		CPUPercent: cpuPercent,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		MemoryRSS:  memInfo.RSS,
		NumThreads: numThreads,
		Timestamp:  time.Now(),
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			u.NumFDs = n
		}
	}

	if regOK.Load() {
		serviceCPUPercent.WithLabelValues(name).Set(u.CPUPercent)
		serviceMemoryMB.WithLabelValues(name).Set(u.MemoryMB)
		serviceNumThreads.WithLabelValues(name).Set(float64(u.NumThreads))
	}
	return u, nil
}
