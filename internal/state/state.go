// Package state persists the install manifest and per-service runtime
// facts in <root>/state.json.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const FileName = "state.json"

// Package describes one installed package.
type Package struct {
	Version     string    `json:"version,omitempty"`
	URL         string    `json:"url"`
	Path        string    `json:"path"`
	Binary      string    `json:"binary"`
	InstalledAt time.Time `json:"installed_at"`
}

// Service holds what the last start resolved for a service.
type Service struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

type State struct {
	Packages map[string]Package `json:"packages"`
	Services map[string]Service `json:"services"`
}

func empty() *State {
	return &State{Packages: map[string]Package{}, Services: map[string]Service{}}
}

// Load reads path; a missing file yields an empty state.
func Load(path string) (*State, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return empty(), nil
	}
	if err != nil {
		return nil, err
	}
	s := empty()
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.Packages == nil {
		s.Packages = map[string]Package{}
	}
	if s.Services == nil {
		s.Services = map[string]Service{}
	}
	return s, nil
}

// Save writes s to path via a temp file and rename.
func (s *State) Save(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Update loads path, applies fn and saves the result.
func Update(path string, fn func(*State) error) error {
	s, err := Load(path)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return s.Save(path)
}
