package installer

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/fampp/internal/locator"
	"github.com/loykin/fampp/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileFetcher "downloads" by copying a prepared local file.
type fileFetcher struct {
	src string
	err error
}

func (f fileFetcher) Download(_ context.Context, _ string, dest string) error {
	if f.err != nil {
		return f.err
	}
	b, err := os.ReadFile(f.src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, b, 0o644)
}

func newTestInstaller(t *testing.T, f Fetcher) (*Installer, string) {
	root := t.TempDir()
	in := New(root, filepath.Join(root, "packages"), filepath.Join(root, "www"))
	in.Fetcher = f
	return in, root
}

func TestInstallSingleFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<?php /* adminer */"))
	}))
	defer server.Close()

	in, root := newTestInstaller(t, fastDownloader(0))
	info, err := registry.Resolve("adminer", "", "linux", "amd64")
	require.NoError(t, err)
	info.URL = server.URL + "/adminer-4.8.1.php"

	res, err := in.Install(context.Background(), info)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "www", "adminer.php"), res.Path)
	assert.Empty(t, res.Binary)

	b, err := os.ReadFile(filepath.Join(root, "www", "adminer.php"))
	require.NoError(t, err)
	assert.Equal(t, "<?php /* adminer */", string(b))

	_, err = os.Stat(filepath.Join(root, "adminer.php"))
	assert.True(t, errors.Is(err, fs.ErrNotExist), "temporary download must be gone")
}

func TestInstallArchiveReplacesPreviousTree(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.tar.gz")
	writeTarGz(t, src, []tarEntry{
		{name: "mysql-8.4.8/bin/mysqld", body: "bin", mode: 0o644, typeflag: '0'},
	})
	in, root := newTestInstaller(t, fileFetcher{src: src})
	stale := filepath.Join(root, "packages", "mysql", "old.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	info, err := registry.Resolve("mysql", "", "darwin", "arm64")
	require.NoError(t, err)
	res, err := in.Install(context.Background(), info)
	require.NoError(t, err)

	want := filepath.Join(root, "packages", "mysql", "mysql-8.4.8", "bin", "mysqld")
	assert.Equal(t, want, res.Binary)
	assert.Equal(t, filepath.Join(root, "packages", "mysql"), res.Path)

	found, err := locator.Find(res.Path, "mysqld")
	require.NoError(t, err)
	assert.Equal(t, want, found)

	_, err = os.Stat(stale)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	_, err = os.Stat(filepath.Join(root, "mysql.tar.gz"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	if st, err := os.Stat(want); assert.NoError(t, err) && !isWindows() {
		assert.Equal(t, fs.FileMode(0o755), st.Mode().Perm())
	}
}

func TestInstallDownloadFailure(t *testing.T) {
	in, root := newTestInstaller(t, fileFetcher{err: errors.New("connection reset")})
	info, _ := registry.Resolve("php", "", "windows", "amd64")

	_, err := in.Install(context.Background(), info)
	var ae *AcquisitionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "download", ae.Op)

	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries)
}

func TestInstallExtractFailureKeepsOldTree(t *testing.T) {
	src := filepath.Join(t.TempDir(), "corrupt.zip")
	require.NoError(t, os.WriteFile(src, []byte("garbage"), 0o644))
	in, root := newTestInstaller(t, fileFetcher{src: src})
	keep := filepath.Join(root, "packages", "php", "php.exe")
	require.NoError(t, os.MkdirAll(filepath.Dir(keep), 0o755))
	require.NoError(t, os.WriteFile(keep, []byte("old"), 0o644))

	info, _ := registry.Resolve("php", "", "windows", "amd64")
	_, err := in.Install(context.Background(), info)
	var ae *AcquisitionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "extract", ae.Op)

	_, err = os.Stat(filepath.Join(root, "php.zip"))
	assert.True(t, errors.Is(err, fs.ErrNotExist), "archive must be removed after failed extraction")
	b, err := os.ReadFile(keep)
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))

	entries, _ := os.ReadDir(filepath.Join(root, "packages"))
	assert.Len(t, entries, 1, "staging directory must be cleaned up")
}

func TestInstallMissingBinary(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.zip")
	writeZip(t, src, map[string]string{"README.txt": "no binary here"})
	in, root := newTestInstaller(t, fileFetcher{src: src})

	info, _ := registry.Resolve("php", "", "windows", "amd64")
	_, err := in.Install(context.Background(), info)
	var ae *AcquisitionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "locate", ae.Op)
	assert.True(t, errors.Is(err, locator.ErrNotFound))

	_, err = os.Stat(filepath.Join(root, "packages", "php"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func isWindows() bool { return filepath.Separator == '\\' }
