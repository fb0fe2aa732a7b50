package registry

import "strings"

// NormalizeOS maps Go GOOS values onto the catalog's OS names.
func NormalizeOS(goos string) string {
	switch s := strings.ToLower(strings.TrimSpace(goos)); s {
	case "darwin", "macos", "osx":
		return "macos"
	default:
		return s
	}
}

// NormalizeArch maps Go GOARCH values onto the catalog's architecture names.
func NormalizeArch(goarch string) string {
	switch s := strings.ToLower(strings.TrimSpace(goarch)); s {
	case "amd64", "x86_64", "x64":
		return "x86_64"
	case "arm64", "aarch64":
		return "aarch64"
	default:
		return s
	}
}
