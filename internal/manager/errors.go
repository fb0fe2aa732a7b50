package manager

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrAlreadyRunning = errors.New("service already running")
	ErrNotRunning     = errors.New("service not running")
	ErrImmediateCrash = errors.New("service exited immediately after start")
)

// AlreadyRunningError is returned by Start when a live process already owns the record.
type AlreadyRunningError struct {
	Name string
	PID  int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%s is already running (pid %d)", e.Name, e.PID)
}

func (e *AlreadyRunningError) Is(target error) bool { return target == ErrAlreadyRunning }

// NotRunningError is returned by Stop when no record exists.
type NotRunningError struct {
	Name string
}

func (e *NotRunningError) Error() string { return e.Name + " is not running" }

func (e *NotRunningError) Is(target error) bool { return target == ErrNotRunning }

// ImmediateCrashError is returned by Start when the child exited inside the
// grace window. No record is written.
type ImmediateCrashError struct {
	Name     string
	ExitCode int
	LogPath  string
	Err      error
}

func (e *ImmediateCrashError) Error() string {
	msg := fmt.Sprintf("%s exited immediately with code %d", e.Name, e.ExitCode)
	if e.LogPath != "" {
		msg += "; see " + e.LogPath
	}
	return msg
}

func (e *ImmediateCrashError) Is(target error) bool { return target == ErrImmediateCrash }

func (e *ImmediateCrashError) Unwrap() error { return e.Err }

// ProcessLookupWarning reports that Stop found a record whose process was
// already gone. The record is removed regardless.
type ProcessLookupWarning struct {
	Name   string
	PID    int
	Reason string
}

func (w *ProcessLookupWarning) Error() string {
	if w.Reason != "" {
		return fmt.Sprintf("%s (pid %d): %s; record removed", w.Name, w.PID, w.Reason)
	}
	return fmt.Sprintf("process %d for %s not found; record removed", w.PID, w.Name)
}

// InitError is returned by InitOnce when the initialisation run fails.
type InitError struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InitError) Error() string {
	msg := fmt.Sprintf("%s initialization failed (exit code %d)", e.Name, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *InitError) Unwrap() error { return e.Err }
