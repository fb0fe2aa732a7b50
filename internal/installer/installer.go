// Package installer downloads runtime packages and puts them in place:
// archives are extracted into packages/<name>, single files are copied to
// the web root.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/loykin/fampp/internal/locator"
	"github.com/loykin/fampp/internal/registry"
)

// Fetcher retrieves a URL into a local file.
type Fetcher interface {
	Download(ctx context.Context, url, dest string) error
}

// Installer runs download then extract-or-copy for one package.
type Installer struct {
	TempDir     string // where <name>.<ext> is downloaded
	PackagesDir string // archives extract into PackagesDir/<name>
	WWWDir      string // single-file packages are copied here
	Fetcher     Fetcher
}

// Result describes what an install produced.
type Result struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Path        string    `json:"path"`   // package directory or copied file
	Binary      string    `json:"binary"` // resolved executable path, empty for assets
	InstalledAt time.Time `json:"installed_at"`
}

// New returns an installer rooted at the given directories using the
// default Downloader.
func New(tempDir, packagesDir, wwwDir string) *Installer {
	return &Installer{TempDir: tempDir, PackagesDir: packagesDir, WWWDir: wwwDir, Fetcher: NewDownloader()}
}

// ArchivePath returns the transient download location for info.
func (in *Installer) ArchivePath(info registry.PackageInfo) string {
	return filepath.Join(in.TempDir, info.Name+"."+info.Ext())
}

// Install downloads info.URL fully, then extracts or copies it, then removes
// the downloaded file. The previous install of the same package is replaced
// only once the new tree is complete.
func (in *Installer) Install(ctx context.Context, info registry.PackageInfo) (Result, error) {
	if in.Fetcher == nil {
		in.Fetcher = NewDownloader()
	}
	archive := in.ArchivePath(info)
	slog.Info("Downloading package", "name", info.Name, "url", info.URL)
	if err := in.Fetcher.Download(ctx, info.URL, archive); err != nil {
		_ = os.Remove(archive)
		return Result{}, &AcquisitionError{Op: "download", Target: info.URL, Err: err}
	}

	var (
		res Result
		err error
	)
	switch info.Kind {
	case registry.KindSingleFile:
		res, err = in.placeFile(info, archive)
	default:
		res, err = in.placeArchive(info, archive)
	}
	if err != nil {
		if rmErr := os.Remove(archive); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			slog.Warn("Failed to remove downloaded archive", "path", archive, "error", rmErr)
		}
		return Result{}, err
	}
	res.Name = info.Name
	res.URL = info.URL
	res.InstalledAt = time.Now().UTC()
	slog.Info("Package installed", "name", info.Name, "path", res.Path, "binary", res.Binary)
	return res, nil
}

func (in *Installer) placeFile(info registry.PackageInfo, archive string) (Result, error) {
	dst := filepath.Join(in.WWWDir, info.Binary)
	if err := CopyFile(archive, dst); err != nil {
		return Result{}, &AcquisitionError{Op: "copy", Target: dst, Err: err}
	}
	return Result{Path: dst}, nil
}

func (in *Installer) placeArchive(info registry.PackageInfo, archive string) (Result, error) {
	if DetectFormat(archive) == FormatUnknown {
		return Result{}, &AcquisitionError{Op: "extract", Target: archive, Err: ErrUnsupportedFormat}
	}
	if err := os.MkdirAll(in.PackagesDir, 0o755); err != nil {
		return Result{}, &AcquisitionError{Op: "install", Target: in.PackagesDir, Err: err}
	}
	staging, err := os.MkdirTemp(in.PackagesDir, "."+info.Name+"-staging-")
	if err != nil {
		return Result{}, &AcquisitionError{Op: "install", Target: in.PackagesDir, Err: err}
	}
	keepStaging := false
	defer func() {
		if !keepStaging {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := Extract(archive, staging); err != nil {
		return Result{}, &AcquisitionError{Op: "extract", Target: archive, Err: err}
	}
	found, err := locator.Find(staging, info.Binary)
	if err != nil {
		return Result{}, &AcquisitionError{Op: "locate", Target: info.Binary, Err: err}
	}
	rel, err := filepath.Rel(staging, found)
	if err != nil {
		return Result{}, &AcquisitionError{Op: "locate", Target: info.Binary, Err: err}
	}

	final := filepath.Join(in.PackagesDir, info.Name)
	if err := os.RemoveAll(final); err != nil {
		return Result{}, &AcquisitionError{Op: "install", Target: final, Err: err}
	}
	if err := os.Rename(staging, final); err != nil {
		return Result{}, &AcquisitionError{Op: "install", Target: final, Err: err}
	}
	keepStaging = true

	bin := filepath.Join(final, rel)
	if err := MakeExecutable(bin); err != nil {
		return Result{}, &AcquisitionError{Op: "install", Target: bin, Err: err}
	}
	return Result{Path: final, Binary: bin}, nil
}

// MakeExecutable sets 0755 on path. It is a no-op on Windows.
func MakeExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}
