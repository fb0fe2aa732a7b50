// Package process spawns detached service processes and inspects the OS
// process table.
package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// Command describes a detached child to launch.
type Command struct {
	Path    string   // executable
	Args    []string // arguments, excluding the executable
	Dir     string   // working directory; empty inherits
	Env     []string // full environment; nil inherits the parent's
	LogPath string   // stdout and stderr are appended here; empty discards output
}

// Child is a running detached process. A background goroutine waits on it so
// an early exit can be observed and the child is reaped if the parent lives on.
type Child struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Spawn starts c detached from the caller's session and returns immediately.
// Stdin is the null device.
func Spawn(c Command) (*Child, error) {
	cmd := exec.Command(c.Path, c.Args...) // #nosec G204
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	detach(cmd)

	var logFile *os.File
	if c.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log %s: %w", c.LogPath, err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	err := cmd.Start()
	// the child holds its own descriptor now
	if logFile != nil {
		_ = logFile.Close()
	}
	if err != nil {
		return nil, err
	}

	ch := &Child{cmd: cmd, done: make(chan struct{})}
	go func() {
		werr := cmd.Wait()
		ch.mu.Lock()
		ch.err = werr
		ch.mu.Unlock()
		close(ch.done)
	}()
	return ch, nil
}

// PID returns the child's process id.
func (c *Child) PID() int { return c.cmd.Process.Pid }

// Done is closed once the child has exited and been reaped.
func (c *Child) Done() <-chan struct{} { return c.done }

// Exited waits up to grace and reports whether the child exited within it.
func (c *Child) Exited(grace time.Duration) bool {
	if grace <= 0 {
		select {
		case <-c.done:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-c.done:
		return true
	case <-t.C:
		return false
	}
}

// ExitCode returns the exit status once Done is closed, or -1 while running
// or when the child was killed by a signal.
func (c *Child) ExitCode() int {
	select {
	case <-c.done:
	default:
		return -1
	}
	if st := c.cmd.ProcessState; st != nil {
		return st.ExitCode()
	}
	return -1
}

// Err returns the error from waiting on the child, nil while running or on a
// clean exit.
func (c *Child) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Kill force-terminates the child and waits briefly for it to be reaped.
func (c *Child) Kill() {
	_ = c.cmd.Process.Kill()
	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
}
