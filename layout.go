package fampp

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/fampp/internal/config"
	"github.com/loykin/fampp/internal/state"
)

// RootEnv overrides the default root directory.
const RootEnv = "FAMPP_ROOT"

// Layout names the directories and files under a fampp root.
type Layout struct {
	Root string
}

// DefaultRoot returns $FAMPP_ROOT or ~/.fampp.
func DefaultRoot() (string, error) {
	if r := os.Getenv(RootEnv); r != "" {
		return filepath.Abs(r)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".fampp"), nil
}

func (l Layout) Packages() string   { return filepath.Join(l.Root, "packages") }
func (l Layout) WWW() string        { return filepath.Join(l.Root, "www") }
func (l Layout) Data() string       { return filepath.Join(l.Root, "data") }
func (l Layout) PIDs() string       { return filepath.Join(l.Data(), "pids") }
func (l Layout) MySQLData() string  { return filepath.Join(l.Data(), "mysql") }
func (l Layout) HistoryDB() string  { return filepath.Join(l.Data(), "history.db") }
func (l Layout) Logs() string       { return filepath.Join(l.Root, "logs") }
func (l Layout) ConfigFile() string { return filepath.Join(l.Root, config.FileName) }
func (l Layout) StateFile() string  { return filepath.Join(l.Root, state.FileName) }

// Init creates the root and its fixed subdirectories.
func (l Layout) Init() error {
	for _, d := range []string{l.Root, l.Packages(), l.WWW(), l.Data(), l.Logs()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}
