// Package tail prints and follows service log streams.
package tail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// readChunk bounds how far back Last reads per step.
const readChunk = 64 * 1024

// Last returns up to n trailing lines of path without their newlines.
func Last(path string, n int) ([]string, error) {
	lines, _, err := last(path, n)
	return lines, err
}

// last also reports the file size the lines were read against.
func last(path string, n int) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if n <= 0 {
		return nil, st.Size(), nil
	}

	// Walk backwards until the window holds more than n newlines or reaches the start.
	size := st.Size()
	off := size
	var buf []byte
	for off > 0 {
		step := int64(readChunk)
		if off < step {
			step = off
		}
		off -= step
		chunk := make([]byte, step)
		if _, err := f.ReadAt(chunk, off); err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, err
		}
		buf = append(chunk, buf...)
		if countNL(buf) > n {
			break
		}
	}

	lines := splitLines(buf)
	if off > 0 && len(lines) > 0 {
		lines = lines[1:] // first line may be partial
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, size, nil
}

func countNL(b []byte) int {
	c := 0
	for _, x := range b {
		if x == '\n' {
			c++
		}
	}
	return c
}

func splitLines(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), len(b)+1)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

// Follow copies bytes appended to path after offset to w until ctx is done.
// A file that shrinks below the read position is treated as truncated and
// re-read from the start.
func Follow(ctx context.Context, path string, offset int64, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	// Watch the directory so rotation by rename/recreate is seen too.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	pos := offset
	drain := func() error {
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		st, err := f.Stat()
		if err != nil {
			return err
		}
		if st.Size() < pos {
			pos = 0
		}
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return err
		}
		n, err := io.Copy(w, f)
		pos += n
		return err
	}

	if err := drain(); err != nil {
		return err
	}
	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Create) {
				pos = 0
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := drain(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
}

// Print writes the last n lines of path to w and, when follow is set,
// keeps streaming appended output until ctx is cancelled.
func Print(ctx context.Context, path string, n int, follow bool, w io.Writer) error {
	lines, size, err := last(path, n)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	if !follow {
		return nil
	}
	return Follow(ctx, path, size, w)
}
