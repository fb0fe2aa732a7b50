// Package manager runs services as detached background processes and tracks
// them through PID records. Every query probes the OS process table; nothing
// about liveness is cached between calls.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/fampp/internal/history"
	"github.com/loykin/fampp/internal/metrics"
	"github.com/loykin/fampp/internal/pidfile"
	"github.com/loykin/fampp/internal/process"
)

const (
	// DefaultGrace is how long Start waits before declaring the child started.
	DefaultGrace = 100 * time.Millisecond
	// DefaultStopTimeout is how long Stop waits after the polite signal
	// before force-killing.
	DefaultStopTimeout = 5 * time.Second

	// start times within this many seconds are treated as the same process
	startSkew = 2
)

// State is the observed state of a recorded service.
type State string

const (
	StateRunning State = "running"
	StateCrashed State = "crashed" // record existed but the process was gone; record reaped
	StateStopped State = "stopped" // no record
)

// Status is one row of a status report.
type Status struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// StopResult describes a completed stop.
type StopResult struct {
	PID     int
	Warning *ProcessLookupWarning
}

// Options configures a Manager.
type Options struct {
	PIDDir      string
	LogDir      string
	Grace       time.Duration
	StopTimeout time.Duration
	Table       process.Table
}

// StartOptions are per-start launch settings.
type StartOptions struct {
	Dir string   // working directory
	Env []string // full child environment; nil inherits
}

// Manager starts, stops and reports services.
type Manager struct {
	store       *pidfile.Store
	logDir      string
	grace       time.Duration
	stopTimeout time.Duration
	table       process.Table

	mu        sync.RWMutex
	histSinks history.Multi
}

// New creates a Manager. Zero durations take the defaults.
func New(o Options) *Manager {
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.StopTimeout < 0 {
		o.StopTimeout = 0
	} else if o.StopTimeout == 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.Table == nil {
		o.Table = process.NewTable()
	}
	return &Manager{
		store:       pidfile.New(o.PIDDir),
		logDir:      o.LogDir,
		grace:       o.Grace,
		stopTimeout: o.StopTimeout,
		table:       o.Table,
	}
}

// SetHistorySinks configures history sinks. Passing none clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.mu.Lock()
	m.histSinks = append(history.Multi(nil), sinks...)
	m.mu.Unlock()
}

// LogPath returns the combined stdout/stderr log of name.
func (m *Manager) LogPath(name string) string {
	return filepath.Join(m.logDir, name+".log")
}

// Records exposes the underlying record store.
func (m *Manager) Records() *pidfile.Store { return m.store }

func (m *Manager) emit(ctx context.Context, typ history.EventType, name string, pid int, detail string) {
	m.mu.RLock()
	sinks := m.histSinks
	m.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	e := history.Event{Type: typ, OccurredAt: time.Now().UTC(), Service: name, PID: pid, Detail: detail}
	if err := sinks.Send(context.WithoutCancel(ctx), e); err != nil {
		slog.Warn("Failed to record history event", "service", name, "event", typ, "error", err)
	}
}

// alive reports whether rec still describes a live process. A start time
// that disagrees with the recorded one means the pid was reused.
func (m *Manager) alive(rec pidfile.Record) bool {
	if !m.table.Alive(rec.PID) {
		return false
	}
	if rec.StartUnix > 0 {
		if cur := m.table.StartUnix(rec.PID); cur > 0 {
			d := cur - rec.StartUnix
			if d > startSkew || d < -startSkew {
				return false
			}
		}
	}
	return true
}

// Start launches binary as service name and returns its pid.
//
// An existing record is re-verified: a live process yields
// *AlreadyRunningError and the record is left untouched, a dead one is
// removed with a warning. A child that exits within the grace window yields
// *ImmediateCrashError and leaves no record.
func (m *Manager) Start(ctx context.Context, name, binary string, args []string, opts StartOptions) (int, error) {
	unlock, err := m.store.Lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	rec, err := m.store.Read(name)
	var pe *pidfile.ParseError
	switch {
	case err == nil:
		if m.alive(rec) {
			return 0, &AlreadyRunningError{Name: name, PID: rec.PID}
		}
		slog.Warn("Removing stale PID record", "service", name, "pid", rec.PID)
		if err := m.store.Remove(name); err != nil {
			return 0, fmt.Errorf("remove stale record for %s: %w", name, err)
		}
		metrics.IncReap(name)
		m.emit(ctx, history.EventReap, name, rec.PID, "stale record before start")
	case errors.As(err, &pe):
		slog.Warn("Removing unreadable PID record", "service", name, "path", pe.Path)
		if err := m.store.Remove(name); err != nil {
			return 0, fmt.Errorf("remove invalid record for %s: %w", name, err)
		}
	case !errors.Is(err, pidfile.ErrNoRecord):
		return 0, fmt.Errorf("read record for %s: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	logPath := m.LogPath(name)
	child, err := process.Spawn(process.Command{
		Path:    binary,
		Args:    args,
		Dir:     opts.Dir,
		Env:     opts.Env,
		LogPath: logPath,
	})
	if err != nil {
		return 0, fmt.Errorf("spawn %s: %w", name, err)
	}
	pid := child.PID()

	if child.Exited(m.grace) {
		code := child.ExitCode()
		slog.Error("Service exited during start", "service", name, "pid", pid, "exitCode", code)
		metrics.IncCrash(name)
		m.emit(ctx, history.EventCrash, name, pid, fmt.Sprintf("exit code %d", code))
		return 0, &ImmediateCrashError{Name: name, ExitCode: code, LogPath: logPath, Err: child.Err()}
	}

	if err := m.store.Write(name, pidfile.Record{PID: pid, StartUnix: m.table.StartUnix(pid)}); err != nil {
		// an unrecorded child could never be stopped
		child.Kill()
		return 0, fmt.Errorf("record pid for %s: %w", name, err)
	}

	slog.Info("Service started", "service", name, "pid", pid, "binary", binary)
	metrics.IncStart(name)
	metrics.SetUp(name, true)
	m.emit(ctx, history.EventStart, name, pid, "")
	return pid, nil
}

// Stop terminates service name and removes its record. A missing record
// yields *NotRunningError without touching anything. A record whose process
// is gone is removed and reported through StopResult.Warning.
func (m *Manager) Stop(ctx context.Context, name string) (StopResult, error) {
	unlock, err := m.store.Lock()
	if err != nil {
		return StopResult{}, err
	}
	defer unlock()

	rec, err := m.store.Read(name)
	var pe *pidfile.ParseError
	switch {
	case errors.Is(err, pidfile.ErrNoRecord):
		return StopResult{}, &NotRunningError{Name: name}
	case errors.As(err, &pe):
		res := StopResult{Warning: &ProcessLookupWarning{Name: name, Reason: "unreadable pid record"}}
		return res, m.finishStop(ctx, name, res)
	case err != nil:
		return StopResult{}, fmt.Errorf("read record for %s: %w", name, err)
	}

	res := StopResult{PID: rec.PID}
	var killErr error
	if !m.alive(rec) {
		res.Warning = &ProcessLookupWarning{Name: name, PID: rec.PID}
	} else if err := m.table.Kill(rec.PID, m.stopTimeout); err != nil {
		if errors.Is(err, process.ErrProcessGone) {
			res.Warning = &ProcessLookupWarning{Name: name, PID: rec.PID}
		} else {
			killErr = fmt.Errorf("kill %s (pid %d): %w", name, rec.PID, err)
		}
	}
	if err := m.finishStop(ctx, name, res); err != nil {
		return res, err
	}
	return res, killErr
}

func (m *Manager) finishStop(ctx context.Context, name string, res StopResult) error {
	if err := m.store.Remove(name); err != nil {
		return fmt.Errorf("remove record for %s: %w", name, err)
	}
	detail := ""
	if res.Warning != nil {
		slog.Warn("Stopped service had no live process", "service", name, "pid", res.PID, "warning", res.Warning.Error())
		detail = res.Warning.Error()
	} else {
		slog.Info("Service stopped", "service", name, "pid", res.PID)
	}
	metrics.IncStop(name)
	metrics.SetUp(name, false)
	m.emit(ctx, history.EventStop, name, res.PID, detail)
	return nil
}

// Status probes every recorded service. Records whose process is gone, or
// which cannot be parsed, are deleted and reported as crashed. Results are
// sorted by name.
func (m *Manager) Status(ctx context.Context) ([]Status, error) {
	unlock, err := m.store.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	names, err := m.store.List()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]Status, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		st, err := m.probe(ctx, name)
		if err != nil {
			return out, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Lookup probes a single service with the same self-healing as Status.
// A service without a record is reported as stopped.
func (m *Manager) Lookup(ctx context.Context, name string) (Status, error) {
	unlock, err := m.store.Lock()
	if err != nil {
		return Status{}, err
	}
	defer unlock()
	if !m.store.Exists(name) {
		return Status{Name: name, State: StateStopped}, nil
	}
	return m.probe(ctx, name)
}

// probe must be called with the store lock held.
func (m *Manager) probe(ctx context.Context, name string) (Status, error) {
	rec, err := m.store.Read(name)
	var pe *pidfile.ParseError
	switch {
	case errors.Is(err, pidfile.ErrNoRecord):
		return Status{Name: name, State: StateStopped}, nil
	case errors.As(err, &pe):
		// fall through to reaping with pid 0
	case err != nil:
		return Status{}, fmt.Errorf("read record for %s: %w", name, err)
	}

	if err == nil && m.alive(rec) {
		st := Status{Name: name, PID: rec.PID, State: StateRunning}
		if rec.StartUnix > 0 {
			st.StartedAt = time.Unix(rec.StartUnix, 0)
		}
		metrics.SetUp(name, true)
		return st, nil
	}

	slog.Warn("Service is no longer running; removing record", "service", name, "pid", rec.PID)
	if err := m.store.Remove(name); err != nil {
		return Status{}, fmt.Errorf("remove record for %s: %w", name, err)
	}
	metrics.IncReap(name)
	metrics.SetUp(name, false)
	m.emit(ctx, history.EventReap, name, rec.PID, "crashed")
	return Status{Name: name, PID: rec.PID, State: StateCrashed}, nil
}
