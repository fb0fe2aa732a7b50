package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/fampp"
	"github.com/loykin/fampp/internal/locale"
	"github.com/loykin/fampp/internal/logger"
)

type command struct {
	global GlobalFlags
	base   fampp.Options // tests override the platform and fetcher here
	out    io.Writer
	errOut io.Writer
}

// session is one opened environment with its logger and message printer.
type session struct {
	env *fampp.Environment
	msg *locale.Printer
	log io.Closer
}

func (c *command) open() (*session, error) {
	s := &session{msg: locale.New("en")}
	opts := c.base
	if c.global.Root != "" {
		opts.Root = c.global.Root
	}
	if c.global.ConfigPath != "" {
		opts.ConfigPath = c.global.ConfigPath
	}
	if opts.Progress == nil {
		opts.Progress = c.errOut
	}
	opts.BeforeInit = func(service string) {
		if service == "mysql" {
			c.println(s.msg.T(locale.MySQLInit))
		}
	}

	env, err := fampp.Open(opts)
	if err != nil {
		return nil, err
	}
	s.env = env
	s.msg = locale.New(env.Config.Language)

	lc := env.Config.Logger(env.Layout.Logs())
	if c.global.LogLevel != "" {
		lc.Level = c.global.LogLevel
	}
	lc.NoColor = c.global.NoColor
	l, closer, err := logger.New(lc, c.errOut)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	slog.SetDefault(l)
	s.log = closer
	return s, nil
}

func (s *session) Close() {
	if err := s.env.Close(); err != nil {
		slog.Warn("Failed to close environment", "error", err)
	}
	_ = s.log.Close()
}

func (c *command) println(a ...any) {
	_, _ = fmt.Fprintln(c.out, a...)
}

func (c *command) eprintln(a ...any) {
	_, _ = fmt.Fprintln(c.errOut, a...)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
