package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	c := &command{out: os.Stdout, errOut: os.Stderr}
	root := buildRoot(c)
	if err := root.Execute(); err != nil {
		var r reported
		if !errors.As(err, &r) {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand bound to c.
func buildRoot(c *command) *cobra.Command {
	root := createRootCommand(&c.global)
	root.AddCommand(
		createInstallCommand(c),
		createStartCommand(c),
		createStopCommand(c),
		createStatusCommand(c),
		createLogsCommand(c),
		createPackagesCommand(c),
		createHistoryCommand(c),
		createDoctorCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "fampp",
		Short: "Pick-and-download local development environment",
		Long: `fampp downloads PHP, MySQL and Adminer for the current platform and runs
them as background services under a single root directory.

Examples:
  fampp install php
  fampp start --all
  fampp status
  fampp logs php --follow`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.Root, "root", "", "fampp root directory (default $FAMPP_ROOT or ~/.fampp)")
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to config.toml (default <root>/config.toml)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "diagnostic log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "disable colored diagnostics")
	return root
}

func createInstallCommand(c *command) *cobra.Command {
	f := &InstallFlags{}
	cmd := &cobra.Command{
		Use:   "install <package>",
		Short: "Download and install a package (php, mysql, adminer)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Install(cmd.Context(), args[0], *f)
		},
	}
	cmd.Flags().StringVarP(&f.Version, "version", "v", "", "package version (currently pinned per platform)")
	return cmd
}

func createStartCommand(c *command) *cobra.Command {
	f := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start [package]",
		Short: "Boot a service in the background",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = firstArg(args)
			return c.Start(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVarP(&f.All, "all", "a", false, "start every installed service")
	return cmd
}

func createStopCommand(c *command) *cobra.Command {
	f := &StopFlags{}
	cmd := &cobra.Command{
		Use:   "stop [package]",
		Short: "Cleanly terminate a running service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = firstArg(args)
			return c.Stop(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVarP(&f.All, "all", "a", false, "stop every recorded service")
	return cmd
}

func createStatusCommand(c *command) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status [service]",
		Short: "Show the state and ports of all services, or of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = firstArg(args)
			return c.Status(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

func createLogsCommand(c *command) *cobra.Command {
	f := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs <package>",
		Short: "Print or follow the combined output of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			return c.Logs(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVarP(&f.Follow, "follow", "f", false, "keep streaming new output until interrupted")
	cmd.Flags().IntVarP(&f.Lines, "lines", "n", 50, "number of trailing lines to print first")
	return cmd
}

func createPackagesCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "packages",
		Short: "List the package catalog for this platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Packages(cmd.Context())
		},
	}
}

func createHistoryCommand(c *command) *cobra.Command {
	f := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history [service]",
		Short: "Show recent install and lifecycle events from data/history.db",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = firstArg(args)
			return c.History(cmd.Context(), *f)
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "maximum number of events")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

func createDoctorCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Show host platform information and environment paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Doctor(cmd.Context())
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// reported marks an error whose message was already printed.
type reported struct{ err error }

func (r reported) Error() string { return r.err.Error() }
func (r reported) Unwrap() error { return r.err }
