// Package pidfile stores one PID record per service under a directory.
//
// A record is a text file <dir>/<name>.pid holding only the decimal PID, so
// `kill $(cat php.pid)` works. The process start time, used to notice PID
// reuse, lives next to it in <name>.start. Writers go through a temp file
// and rename so readers never observe a torn record; callers serialize
// read-modify-write sequences with Lock.
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	suffix      = ".pid"
	startSuffix = ".start"
	lockName    = ".lock"
)

// ErrNoRecord is returned by Read when no record exists for the name.
var ErrNoRecord = errors.New("no pid record")

// Record is the content of one PID file.
type Record struct {
	PID       int
	StartUnix int64 // 0 when unknown
}

// ParseError reports a record that is not a single positive integer.
type ParseError struct {
	Path string
	Raw  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid pid record %s: %q", e.Path, e.Raw)
}

// Store manages the records in Dir.
type Store struct {
	Dir string
}

// New returns a store rooted at dir. The directory is created lazily.
func New(dir string) *Store { return &Store{Dir: dir} }

// Path returns the record path for name.
func (s *Store) Path(name string) string { return filepath.Join(s.Dir, name+suffix) }

func (s *Store) startPath(name string) string { return filepath.Join(s.Dir, name+startSuffix) }

// Lock takes the store-wide advisory lock, blocking until it is available.
// The returned function releases it.
func (s *Store) Lock() (func(), error) {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create pid dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.Dir, lockName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s: %w", f.Name(), err)
	}
	return func() {
		_ = unlockFile(f)
		_ = f.Close()
	}, nil
}

// Write stores rec for name atomically. The start time is written before
// the pid so a visible record never pairs with a previous start time.
func (s *Store) Write(name string, rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("write pid record %s: invalid pid %d", name, rec.PID)
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	if rec.StartUnix > 0 {
		if err := s.replace(name, s.startPath(name), strconv.FormatInt(rec.StartUnix, 10)+"\n"); err != nil {
			return err
		}
	} else if err := removeIfExists(s.startPath(name)); err != nil {
		return fmt.Errorf("remove start time: %w", err)
	}
	return s.replace(name, s.Path(name), strconv.Itoa(rec.PID)+"\n")
}

func (s *Store) replace(name, path, content string) error {
	tmp, err := os.CreateTemp(s.Dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

// Read loads the record for name. A missing file yields ErrNoRecord and an
// unparseable one a *ParseError.
func (s *Store) Read(name string) (Record, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNoRecord
		}
		return Record{}, err
	}
	rec, err := parse(path, string(data))
	if err != nil {
		return Record{}, err
	}
	rec.StartUnix = s.startUnix(name)
	return rec, nil
}

func parse(path, data string) (Record, error) {
	raw := strings.TrimSpace(data)
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return Record{}, &ParseError{Path: path, Raw: raw}
	}
	return Record{PID: pid}, nil
}

// startUnix is advisory: a missing or broken start file yields 0.
func (s *Store) startUnix(name string) int64 {
	data, err := os.ReadFile(s.startPath(name))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Exists reports whether a record file exists for name.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Remove deletes the record for name and its start time. Removing a
// missing record is not an error.
func (s *Store) Remove(name string) error {
	if err := removeIfExists(s.Path(name)); err != nil {
		return err
	}
	return removeIfExists(s.startPath(name))
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the names that currently have a record, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, suffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(n, suffix))
	}
	sort.Strings(names)
	return names, nil
}
