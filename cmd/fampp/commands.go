package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/loykin/fampp"
	"github.com/loykin/fampp/internal/history"
	"github.com/loykin/fampp/internal/locale"
	"github.com/loykin/fampp/internal/manager"
	"github.com/loykin/fampp/internal/registry"
	"github.com/loykin/fampp/internal/state"
	"github.com/shirou/gopsutil/v4/host"
)

// describe renders err in the session language when it is one of the
// errors users routinely hit.
func (s *session) describe(name string, err error) string {
	var (
		ue *registry.UnsupportedPackageError
		ar *manager.AlreadyRunningError
		nr *manager.NotRunningError
		ic *manager.ImmediateCrashError
	)
	switch {
	case errors.As(err, &ue):
		return s.msg.T(locale.Unsupported, ue.Name)
	case errors.Is(err, fampp.ErrNotInstalled):
		return s.msg.T(locale.NotInstalled, name, name)
	case errors.As(err, &ar):
		return s.msg.T(locale.AlreadyRunning, ar.Name, strconv.Itoa(ar.PID))
	case errors.As(err, &nr):
		return s.msg.T(locale.NotRunning, nr.Name)
	case errors.As(err, &ic):
		return s.msg.T(locale.ImmediateCrash, ic.Name, strconv.Itoa(ic.ExitCode), ic.LogPath)
	}
	return s.msg.T(locale.StartFailed, name, err.Error())
}

func (c *command) Install(ctx context.Context, name string, f InstallFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	v := f.Version
	if v == "" {
		v = "latest"
	}
	c.println(s.msg.T(locale.InstallFetching, name, v))
	res, err := s.env.Install(ctx, name, f.Version)
	if err != nil {
		var ue *registry.UnsupportedPackageError
		if errors.As(err, &ue) {
			c.eprintln(s.msg.T(locale.Unsupported, ue.Name))
		} else {
			c.eprintln(s.msg.T(locale.InstallFailed, name, err.Error()))
		}
		return reported{err}
	}
	c.println(s.msg.T(locale.InstallDone, strings.ToUpper(res.Name), res.Path))
	return nil
}

func (c *command) Start(ctx context.Context, f StartFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	if f.All {
		started, err := s.env.StartAll(ctx)
		for _, st := range started {
			c.printStarted(s, st)
		}
		if err != nil {
			c.eprintln(err)
			return reported{err}
		}
		return nil
	}
	if f.Name == "" {
		c.eprintln(s.msg.T(locale.SpecifyPackage, "start"))
		return reported{errors.New("no package given")}
	}

	c.println(s.msg.T(locale.Booting, f.Name))
	st, err := s.env.Start(ctx, f.Name)
	if err != nil {
		c.eprintln(s.describe(f.Name, err))
		return reported{err}
	}
	c.printStarted(s, st)
	return nil
}

func (c *command) printStarted(s *session, st fampp.Started) {
	if st.Initialized {
		c.println(s.msg.T(locale.MySQLInitDone))
	}
	c.println(s.msg.T(locale.SuccessStart, strings.ToUpper(st.Name), strconv.Itoa(st.PID)))
	switch {
	case st.URL != "":
		c.println("   " + s.msg.T(locale.ConnURL, st.URL))
	case st.User != "":
		c.println("   " + s.msg.T(locale.ConnHost, st.Host+":"+strconv.Itoa(st.Port)))
		c.println("   " + s.msg.T(locale.ConnUser, st.User))
		c.println("   " + s.msg.T(locale.ConnPass, s.msg.T(locale.None)))
	}
}

func (c *command) Stop(ctx context.Context, f StopFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	if f.All {
		stopped, err := s.env.StopAll(ctx)
		for _, st := range stopped {
			c.printStopped(s, st.Name, st.Result)
		}
		if len(stopped) == 0 && err == nil {
			c.println(s.msg.T(locale.NoActiveServices))
		}
		if err != nil {
			c.eprintln(err)
			return reported{err}
		}
		return nil
	}
	if f.Name == "" {
		c.eprintln(s.msg.T(locale.SpecifyPackage, "stop"))
		return reported{errors.New("no package given")}
	}

	c.println(s.msg.T(locale.Halting, f.Name))
	res, err := s.env.Stop(ctx, f.Name)
	if err != nil {
		c.eprintln(s.describe(f.Name, err))
		return reported{err}
	}
	c.printStopped(s, f.Name, res)
	return nil
}

func (c *command) printStopped(s *session, name string, res fampp.StopResult) {
	if res.Warning != nil {
		c.println(s.msg.T(locale.StopWarning, strings.ToUpper(name), res.Warning.Error()))
		return
	}
	c.println(s.msg.T(locale.SuccessStop, strings.ToUpper(name)))
}

func (c *command) Status(ctx context.Context, f StatusFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	var rows []fampp.ServiceRow
	if f.Name != "" {
		row, err := s.env.StatusOf(ctx, f.Name)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	} else if rows, err = s.env.Status(ctx); err != nil {
		return err
	}
	if f.JSON {
		return printJSON(c.out, rows)
	}

	c.println(s.msg.T(locale.StatusFetching))
	c.println()
	tw := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(tw, "%s\t%s\tPID\t%s\n", s.msg.T(locale.Service), s.msg.T(locale.Status), s.msg.T(locale.PortInfo))
	anyRunning := false
	for _, r := range rows {
		label, pid := s.msg.T(locale.Stopped), "-"
		switch r.State {
		case manager.StateRunning:
			label, pid = s.msg.T(locale.Active), strconv.Itoa(r.PID)
			anyRunning = true
		case manager.StateCrashed:
			label = s.msg.T(locale.Crashed)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strings.ToUpper(r.Name), label, pid, r.Info)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	c.println()
	if anyRunning {
		c.println(s.msg.T(locale.TipMonitor), "'fampp logs <service>'")
	} else {
		c.println(s.msg.T(locale.TipBoot), "'fampp start <service>'")
	}
	return nil
}

func (c *command) Logs(ctx context.Context, f LogsFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	if f.Follow {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		c.println(s.msg.T(locale.LogLiveStream, f.Name))
		c.println(s.msg.T(locale.LogExitTip))
		c.println(strings.Repeat("-", 50))
	}
	err = s.env.Logs(ctx, f.Name, f.Lines, f.Follow, c.out)
	if errors.Is(err, fampp.ErrNoLog) {
		c.eprintln(s.msg.T(locale.LogNotFound, f.Name))
		c.eprintln(s.msg.T(locale.LogStartHint, f.Name))
		return reported{err}
	}
	return err
}

func (c *command) History(ctx context.Context, f HistoryFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.env.History(ctx, f.Name, f.Limit)
	if err != nil {
		return err
	}
	if f.JSON {
		if events == nil {
			events = []history.Event{}
		}
		return printJSON(c.out, events)
	}
	if len(events) == 0 {
		c.println("No history recorded")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tSERVICE\tPID\tDETAIL")
	for _, e := range events {
		pid := "-"
		if e.PID > 0 {
			pid = strconv.Itoa(e.PID)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.OccurredAt.Local().Format("2006-01-02 15:04:05"), e.Type, e.Service, pid, e.Detail)
	}
	return tw.Flush()
}

func (c *command) Packages(_ context.Context) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := state.Load(s.env.Layout.StateFile())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tKIND\tSERVICE\tAVAILABLE\tINSTALLED")
	for _, n := range registry.Names() {
		kind, svc, avail := "-", "-", "no"
		if info, err := s.env.Resolve(n, ""); err == nil {
			kind, avail = string(info.Kind), "yes"
			if info.Service {
				svc = "yes"
			}
		}
		installed := "-"
		if p, ok := st.Packages[n]; ok {
			installed = p.InstalledAt.Local().Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n, kind, svc, avail, installed)
	}
	return tw.Flush()
}

func (c *command) Doctor(ctx context.Context) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return fmt.Errorf("read host info: %w", err)
	}
	st, err := state.Load(s.env.Layout.StateFile())
	if err != nil {
		return err
	}
	l := s.env.Layout
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"host", info.Hostname},
		{"os", info.OS + " (" + registry.NormalizeOS(info.OS) + ")"},
		{"platform", strings.TrimSpace(info.Platform + " " + info.PlatformVersion)},
		{"kernel", info.KernelVersion},
		{"arch", info.KernelArch + " (" + registry.NormalizeArch(info.KernelArch) + ")"},
		{"root", l.Root},
		{"config", l.ConfigFile()},
		{"logs", l.Logs()},
		{"language", s.msg.Language()},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1])
	}
	for _, n := range registry.Names() {
		status := "available"
		if _, err := s.env.Resolve(n, ""); err != nil {
			status = "not available on this platform"
		} else if _, ok := st.Packages[n]; ok {
			status = "installed"
		}
		_, _ = fmt.Fprintf(tw, "package %s:\t%s\n", n, status)
	}
	return tw.Flush()
}
