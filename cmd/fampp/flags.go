package main

// GlobalFlags holds the persistent flags shared by every subcommand.
type GlobalFlags struct {
	Root       string
	ConfigPath string
	LogLevel   string
	NoColor    bool
}

type InstallFlags struct {
	Version string
}

type StartFlags struct {
	Name string
	All  bool
}

type StopFlags struct {
	Name string
	All  bool
}

type StatusFlags struct {
	Name string
	JSON bool
}

type LogsFlags struct {
	Name   string
	Follow bool
	Lines  int
}

type HistoryFlags struct {
	Name  string
	Limit int
	JSON  bool
}
