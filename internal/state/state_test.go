package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Empty(t, s.Packages)
	assert.NotNil(t, s.Services)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "root", FileName)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &State{
		Packages: map[string]Package{
			"php":     {URL: "https://example.invalid/php.zip", Path: "/r/packages/php", Binary: "/r/packages/php/php.exe", InstalledAt: at},
			"adminer": {URL: "https://example.invalid/adminer.php", Path: "/r/www/adminer.php", Binary: "/r/www/adminer.php", InstalledAt: at},
		},
		Services: map[string]Service{"php": {Host: "127.0.0.1", Port: 8001}},
	}
	require.NoError(t, s.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"packages":null}`), 0o644))
	s, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, s.Packages)
}

func TestUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Update(path, func(s *State) error {
		s.Services["mysql"] = Service{Host: "127.0.0.1", Port: 3306}
		return nil
	}))
	boom := errors.New("boom")
	err := Update(path, func(s *State) error {
		delete(s.Services, "mysql")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3306, s.Services["mysql"].Port)
}
