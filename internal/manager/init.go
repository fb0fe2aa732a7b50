package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// InitOnce runs binary with args synchronously when dataDir is missing or
// empty and reports whether it ran. A non-zero exit yields *InitError with
// the captured stderr, and dataDir is cleared so the next attempt starts
// over. stdout and stderr are also appended to the service log.
func (m *Manager) InitOnce(ctx context.Context, name, binary string, args []string, dataDir string, opts StartOptions) (bool, error) {
	empty, err := dirEmpty(dataDir)
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", dataDir, err)
	}
	if !empty {
		return false, nil
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return false, fmt.Errorf("create %s: %w", dataDir, err)
	}

	slog.Info("Initializing data directory", "service", name, "dir", dataDir)
	cmd := exec.CommandContext(ctx, binary, args...) // #nosec G204
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	var stderr bytes.Buffer
	var logW io.Writer = io.Discard
	_ = os.MkdirAll(m.logDir, 0o750)
	if f, err := os.OpenFile(m.LogPath(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
		defer func() { _ = f.Close() }()
		logW = f
	}
	cmd.Stdout = logW
	cmd.Stderr = io.MultiWriter(&stderr, logW)

	if err := cmd.Run(); err != nil {
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		_ = os.RemoveAll(dataDir)
		return true, &InitError{Name: name, ExitCode: code, Stderr: stderr.String(), Err: err}
	}
	return true, nil
}

func dirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	defer func() { _ = f.Close() }()
	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
