package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Kind describes how a downloaded asset becomes an installed package.
type Kind string

const (
	KindArchive    Kind = "archive"     // zip or tar.gz, extracted into packages/<name>
	KindSingleFile Kind = "single-file" // copied as-is to a fixed location
)

// PackageInfo is the result of a catalog lookup. It is never persisted.
type PackageInfo struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Binary  string `json:"binary"`
	Kind    Kind   `json:"kind"`
	Service bool   `json:"service"` // runs as a background service
}

// Ext returns the archive extension used for the temporary download path.
func (p PackageInfo) Ext() string {
	u := strings.ToLower(p.URL)
	switch {
	case strings.HasSuffix(u, ".tar.gz"), strings.HasSuffix(u, ".tgz"):
		return "tar.gz"
	case strings.HasSuffix(u, ".php"):
		return "php"
	default:
		return "zip"
	}
}

// UnsupportedPackageError is returned when a name is not in the catalog or
// the package has no asset for the requested platform.
type UnsupportedPackageError struct {
	Name string
	OS   string
	Arch string
}

func (e *UnsupportedPackageError) Error() string {
	if e.OS == "" {
		return fmt.Sprintf("package %q is not supported or not found in registry", e.Name)
	}
	return fmt.Sprintf("package %q is not available for %s/%s", e.Name, e.OS, e.Arch)
}

type asset struct {
	url    string
	binary string
}

type entry struct {
	kind    Kind
	service bool
	// assets is keyed by "os/arch"; "os/*" matches any arch and "*/*" any platform.
	assets map[string]asset
}

const (
	phpBase   = "https://dl.static-php.dev/static-php-cli/common"
	mysqlBase = "https://github.com/0xffructose/fampp-core/releases/download/BinaryUpdate"
)

var catalog = map[string]entry{
	"php": {
		kind:    KindArchive,
		service: true,
		assets: map[string]asset{
			"windows/*":     {"https://windows.php.net/downloads/releases/php-8.2.12-nts-Win32-vs16-x64.zip", "php.exe"},
			"macos/aarch64": {phpBase + "/php-8.2.12-cli-macos-aarch64.tar.gz", "php"},
			"macos/*":       {phpBase + "/php-8.2.12-cli-macos-x86_64.tar.gz", "php"},
		},
	},
	"mysql": {
		kind:    KindArchive,
		service: true,
		assets: map[string]asset{
			"windows/*":     {mysqlBase + "/mysql-8.4.8-winx64.zip", "mysqld.exe"},
			"macos/aarch64": {mysqlBase + "/mysql-8.4.8-macos15-arm64.tar.gz", "mysqld"},
			"macos/*":       {mysqlBase + "/mysql-8.4.8-macos15-x86_64.tar.gz", "mysqld"},
		},
	},
	"adminer": {
		kind: KindSingleFile,
		assets: map[string]asset{
			"*/*": {"https://github.com/vrana/adminer/releases/download/v4.8.1/adminer-4.8.1.php", "adminer.php"},
		},
	},
}

// Resolve looks up name for the given platform. version is accepted for
// forward compatibility and currently ignored: every asset is pinned.
// goos and goarch may use either Go names (darwin, amd64, arm64) or the
// catalog names (macos, x86_64, aarch64).
func Resolve(name, version, goos, goarch string) (PackageInfo, error) {
	_ = version
	key := strings.ToLower(strings.TrimSpace(name))
	e, ok := catalog[key]
	if !ok {
		return PackageInfo{}, &UnsupportedPackageError{Name: name}
	}
	osName := NormalizeOS(goos)
	archName := NormalizeArch(goarch)
	for _, k := range []string{osName + "/" + archName, osName + "/*", "*/*"} {
		if a, ok := e.assets[k]; ok {
			return PackageInfo{Name: key, URL: a.url, Binary: a.binary, Kind: e.kind, Service: e.service}, nil
		}
	}
	return PackageInfo{}, &UnsupportedPackageError{Name: name, OS: osName, Arch: archName}
}

// Names returns the catalog package names in sorted order.
func Names() []string {
	out := make([]string, 0, len(catalog))
	for k := range catalog {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Services returns the sorted names of packages that run as background services.
func Services() []string {
	var out []string
	for _, n := range Names() {
		if catalog[n].service {
			out = append(out, n)
		}
	}
	return out
}
