// Package fampp wires the package registry, the acquisition pipeline and the
// service lifecycle manager into one local development environment rooted
// at a single directory.
package fampp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/loykin/fampp/internal/config"
	"github.com/loykin/fampp/internal/env"
	"github.com/loykin/fampp/internal/history"
	"github.com/loykin/fampp/internal/history/factory"
	"github.com/loykin/fampp/internal/installer"
	"github.com/loykin/fampp/internal/locator"
	"github.com/loykin/fampp/internal/manager"
	"github.com/loykin/fampp/internal/metrics"
	"github.com/loykin/fampp/internal/process"
	"github.com/loykin/fampp/internal/registry"
	"github.com/loykin/fampp/internal/state"
	"github.com/loykin/fampp/internal/tail"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrNotInstalled is returned by Start when the package binary cannot be found.
	ErrNotInstalled = errors.New("package is not installed")
	// ErrNotService is returned by Start for packages that do not run as services.
	ErrNotService = errors.New("package is not a service")
	// ErrNoLog is returned by Logs when the service never wrote a log.
	ErrNoLog = errors.New("no log file")
	// ErrNoHistory is returned by History when no queryable sink is configured.
	ErrNoHistory = errors.New("no local history database")
)

// Re-exported for callers that only import the root package.
type (
	Status     = manager.Status
	StopResult = manager.StopResult
	Config     = config.Config
)

// Options configures Open. Zero values pick the defaults.
type Options struct {
	Root       string // defaults to DefaultRoot()
	ConfigPath string // defaults to <root>/config.toml
	OS, Arch   string // platform used for registry lookups; defaults to the host

	Fetcher  installer.Fetcher // replaces the HTTP downloader
	Progress io.Writer         // download progress bar destination
	Table    process.Table     // replaces the OS process table

	// BeforeInit is called before a service runs its one-time data
	// initialisation, which may take a while.
	BeforeInit func(service string)
}

// Environment is an opened fampp root.
type Environment struct {
	Layout    Layout
	Config    *config.Config
	Manager   *manager.Manager
	Installer *installer.Installer

	os, arch   string
	env        *env.Env
	history    history.Multi
	beforeInit func(string)
}

// Open prepares the root layout, loads settings and connects history sinks.
func Open(o Options) (*Environment, error) {
	root := o.Root
	if root == "" {
		r, err := DefaultRoot()
		if err != nil {
			return nil, err
		}
		root = r
	}
	l := Layout{Root: root}
	if err := l.Init(); err != nil {
		return nil, err
	}
	cfgPath := o.ConfigPath
	if cfgPath == "" {
		cfgPath = l.ConfigFile()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	environ, err := cfg.Environ()
	if err != nil {
		return nil, err
	}

	var dsns []string
	if !cfg.History.Disabled {
		dsns = cfg.History.DSN
		if len(dsns) == 0 {
			dsns = []string{l.HistoryDB()}
		}
	}
	hist, err := factory.NewMulti(dsns)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Textfile != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			_ = hist.Close()
			return nil, err
		}
	}

	mgr := manager.New(manager.Options{
		PIDDir:      l.PIDs(),
		LogDir:      l.Logs(),
		Grace:       cfg.Grace,
		StopTimeout: cfg.StopTimeout,
		Table:       o.Table,
	})
	if len(hist) > 0 {
		mgr.SetHistorySinks(hist)
	}

	inst := installer.New(root, l.Packages(), l.WWW())
	if o.Fetcher != nil {
		inst.Fetcher = o.Fetcher
	} else {
		d := installer.NewDownloader()
		d.SetRetries(cfg.Download.Retries)
		if cfg.Download.Timeout > 0 {
			d.SetTimeout(cfg.Download.Timeout)
		}
		d.Progress = o.Progress
		inst.Fetcher = d
	}

	e := &Environment{
		Layout:     l,
		Config:     cfg,
		Manager:    mgr,
		Installer:  inst,
		os:         o.OS,
		arch:       o.Arch,
		env:        environ,
		history:    hist,
		beforeInit: o.BeforeInit,
	}
	if e.os == "" {
		e.os = runtime.GOOS
	}
	if e.arch == "" {
		e.arch = runtime.GOARCH
	}
	return e, nil
}

// Close flushes the metrics textfile and closes history sinks.
func (e *Environment) Close() error {
	var errs []error
	if p := e.Config.Metrics.Textfile; p != "" {
		if err := metrics.WriteTextfile(p, prometheus.DefaultGatherer); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	errs = append(errs, e.history.Close())
	return errors.Join(errs...)
}

// Resolve looks name up in the registry for the environment's platform.
func (e *Environment) Resolve(name, version string) (registry.PackageInfo, error) {
	return registry.Resolve(name, version, e.os, e.arch)
}

// Install resolves, downloads and places a package, then records it in the
// state manifest.
func (e *Environment) Install(ctx context.Context, name, version string) (installer.Result, error) {
	info, err := e.Resolve(name, version)
	if err != nil {
		return installer.Result{}, err
	}
	begin := time.Now()
	res, err := e.Installer.Install(ctx, info)
	metrics.ObserveInstall(info.Name, time.Since(begin).Seconds(), err)
	if err != nil {
		return installer.Result{}, err
	}

	err = e.updateState(func(s *state.State) error {
		s.Packages[info.Name] = state.Package{
			Version:     version,
			URL:         res.URL,
			Path:        res.Path,
			Binary:      res.Binary,
			InstalledAt: res.InstalledAt,
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("record install of %s: %w", info.Name, err)
	}
	e.record(ctx, history.EventInstall, info.Name, res.Path)
	return res, nil
}

// updateState runs a read-modify-write of state.json under the record
// store lock shared by every fampp invocation on this root.
func (e *Environment) updateState(fn func(*state.State) error) error {
	unlock, err := e.Manager.Records().Lock()
	if err != nil {
		return err
	}
	defer unlock()
	return state.Update(e.Layout.StateFile(), fn)
}

func (e *Environment) record(ctx context.Context, typ history.EventType, name, detail string) {
	if len(e.history) == 0 {
		return
	}
	ev := history.Event{Type: typ, OccurredAt: time.Now().UTC(), Service: name, Detail: detail}
	if err := e.history.Send(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("Failed to record history event", "name", name, "event", typ, "error", err)
	}
}

// binary returns the executable for an installed service package: the path
// recorded at install time when it still exists, else the first match in
// packages/<name>.
func (e *Environment) binary(info registry.PackageInfo) (string, error) {
	st, err := state.Load(e.Layout.StateFile())
	if err != nil {
		return "", err
	}
	if p, ok := st.Packages[info.Name]; ok && p.Binary != "" {
		if fi, err := os.Stat(p.Binary); err == nil && !fi.IsDir() {
			return p.Binary, nil
		}
	}
	bin, err := locator.Find(filepath.Join(e.Layout.Packages(), info.Name), info.Binary)
	if errors.Is(err, locator.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", info.Name, ErrNotInstalled)
	}
	return bin, err
}

// Started describes a service launched by Start.
type Started struct {
	Name        string `json:"name"`
	PID         int    `json:"pid"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	URL         string `json:"url,omitempty"`
	User        string `json:"user,omitempty"`
	Initialized bool   `json:"initialized,omitempty"` // data directory was created by this start
}

// Start launches one service package in the background.
func (e *Environment) Start(ctx context.Context, name string) (Started, error) {
	info, err := e.Resolve(name, "")
	if err != nil {
		return Started{}, err
	}
	if !info.Service {
		return Started{}, fmt.Errorf("%s: %w", info.Name, ErrNotService)
	}
	bin, err := e.binary(info)
	if err != nil {
		return Started{}, err
	}
	if err := installer.MakeExecutable(bin); err != nil {
		return Started{}, err
	}

	p, err := e.plan(ctx, info.Name, bin)
	if err != nil {
		return Started{}, err
	}
	pid, err := e.Manager.Start(ctx, info.Name, bin, p.args, manager.StartOptions{Dir: p.dir, Env: e.env.Merge(nil)})
	if err != nil {
		return Started{}, err
	}
	p.started.PID = pid

	err = e.updateState(func(s *state.State) error {
		s.Services[info.Name] = state.Service{Host: p.started.Host, Port: p.started.Port}
		return nil
	})
	if err != nil {
		slog.Warn("Failed to record service port", "name", info.Name, "error", err)
	}
	return p.started, nil
}

// StartAll starts every installed service package. Packages that are not
// installed are skipped; other failures are joined.
func (e *Environment) StartAll(ctx context.Context) ([]Started, error) {
	var (
		out  []Started
		errs []error
	)
	for _, n := range registry.Services() {
		s, err := e.Start(ctx, n)
		switch {
		case errors.Is(err, ErrNotInstalled):
			slog.Debug("Skipping service that is not installed", "name", n)
		case err != nil:
			errs = append(errs, err)
		default:
			out = append(out, s)
		}
	}
	return out, errors.Join(errs...)
}

// Stop stops one service.
func (e *Environment) Stop(ctx context.Context, name string) (StopResult, error) {
	return e.Manager.Stop(ctx, strings.ToLower(strings.TrimSpace(name)))
}

// Stopped is the outcome of stopping one service in StopAll.
type Stopped struct {
	Name   string
	Result StopResult
}

// StopAll stops every service that has a record.
func (e *Environment) StopAll(ctx context.Context) ([]Stopped, error) {
	names, err := e.Manager.Records().List()
	if err != nil {
		return nil, err
	}
	var (
		out  []Stopped
		errs []error
	)
	for _, n := range names {
		res, err := e.Manager.Stop(ctx, n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, Stopped{Name: n, Result: res})
	}
	return out, errors.Join(errs...)
}

// ServiceRow is one line of the environment status table.
type ServiceRow struct {
	manager.Status
	Info  string                 `json:"info"`
	Usage *metrics.ResourceUsage `json:"usage,omitempty"`
}

// Status reports every service package plus any other recorded service.
// Dead records are reaped on the way.
func (e *Environment) Status(ctx context.Context) ([]ServiceRow, error) {
	recs, err := e.Manager.Status(ctx)
	if err != nil {
		return nil, err
	}
	st := e.readState()

	byName := make(map[string]manager.Status, len(recs))
	for _, r := range recs {
		byName[r.Name] = r
	}
	var rows []ServiceRow
	seen := map[string]bool{}
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		s, ok := byName[name]
		if !ok {
			s = manager.Status{Name: name, State: manager.StateStopped}
		}
		rows = append(rows, e.row(s, st))
	}
	for _, n := range registry.Services() {
		add(n)
	}
	for _, r := range recs {
		add(r.Name)
	}
	return rows, nil
}

// StatusOf reports a single service, reaping its record when the process
// is gone.
func (e *Environment) StatusOf(ctx context.Context, name string) (ServiceRow, error) {
	s, err := e.Manager.Lookup(ctx, strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return ServiceRow{}, err
	}
	return e.row(s, e.readState()), nil
}

func (e *Environment) readState() *state.State {
	st, err := state.Load(e.Layout.StateFile())
	if err != nil {
		slog.Warn("Ignoring unreadable state file", "path", e.Layout.StateFile(), "error", err)
		return &state.State{Services: map[string]state.Service{}}
	}
	return st
}

func (e *Environment) row(s manager.Status, st *state.State) ServiceRow {
	row := ServiceRow{Status: s, Info: e.info(s.Name, s, st)}
	if s.State == manager.StateRunning {
		if u, err := metrics.Sample(s.Name, s.PID); err == nil {
			row.Usage = &u
		} else {
			slog.Debug("Failed to sample service resources", "name", s.Name, "error", err)
		}
	}
	return row
}

// History returns the latest lifecycle events recorded in the local
// history database, newest first. An empty name matches every service.
func (e *Environment) History(ctx context.Context, name string, limit int) ([]history.Event, error) {
	for _, s := range e.history {
		if q, ok := s.(interface {
			Recent(ctx context.Context, name string, limit int) ([]history.Event, error)
		}); ok {
			return q.Recent(ctx, strings.ToLower(strings.TrimSpace(name)), limit)
		}
	}
	return nil, ErrNoHistory
}

// Logs prints the last lines of a service log and optionally follows it
// until ctx is cancelled.
func (e *Environment) Logs(ctx context.Context, name string, lines int, follow bool, w io.Writer) error {
	path := e.Manager.LogPath(strings.ToLower(strings.TrimSpace(name)))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrNoLog)
		}
		return err
	}
	return tail.Print(ctx, path, lines, follow, w)
}
