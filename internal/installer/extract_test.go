package installer

import (
	"archive/tar"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarEntry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func writeTarGz(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode, Typeflag: e.typeflag, Linkname: e.linkname}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0o755)
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatZip, DetectFormat("php.zip"))
	assert.Equal(t, FormatTarGz, DetectFormat("mysql.tar.gz"))
	assert.Equal(t, FormatTarGz, DetectFormat("x.TGZ"))
	assert.Equal(t, FormatUnknown, DetectFormat("adminer.php"))
	assert.Equal(t, FormatUnknown, DetectFormat("x.tar.xz"))
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "php.zip")
	writeZip(t, archive, map[string]string{"php.exe": "MZ", "ext/php_mysqli.dll": "dll"})

	dest := filepath.Join(dir, "out")
	require.NoError(t, Extract(archive, dest))

	b, err := os.ReadFile(filepath.Join(dest, "php.exe"))
	require.NoError(t, err)
	assert.Equal(t, "MZ", string(b))
	_, err = os.Stat(filepath.Join(dest, "ext", "php_mysqli.dll"))
	require.NoError(t, err)

	_, err = os.Stat(archive)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "archive should be deleted after extraction")
}

func TestExtractDropsGroupAndOtherWrite(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := t.TempDir()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	hdr := &zip.FileHeader{Name: "php.ini", Method: zip.Deflate}
	hdr.SetMode(0o666)
	w, err := zw.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = w.Write([]byte("memory_limit=128M"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	zipPath := filepath.Join(dir, "php.zip")
	require.NoError(t, os.WriteFile(zipPath, buf.Bytes(), 0o644))
	require.NoError(t, Extract(zipPath, filepath.Join(dir, "zip")))

	tgzPath := filepath.Join(dir, "mysql.tar.gz")
	writeTarGz(t, tgzPath, []tarEntry{{name: "bin/mysqld", body: "#!/bin/sh", mode: 0o777, typeflag: tar.TypeReg}})
	require.NoError(t, Extract(tgzPath, filepath.Join(dir, "tgz")))

	fi, err := os.Stat(filepath.Join(dir, "zip", "php.ini"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o644), fi.Mode().Perm())
	fi, err = os.Stat(filepath.Join(dir, "tgz", "bin", "mysqld"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o755), fi.Mode().Perm())
}

func TestExtractTarGzPreservesModesAndLinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks and unix modes")
	}
	dir := t.TempDir()
	archive := filepath.Join(dir, "mysql.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "mysql/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "mysql/bin/mysqld", body: "#!/bin/sh\n", mode: 0o755, typeflag: tar.TypeReg},
		{name: "mysql/share/errmsg.txt", body: "msg", mode: 0o600, typeflag: tar.TypeReg},
		{name: "mysql/bin/mysqld-latest", typeflag: tar.TypeSymlink, linkname: "mysqld"},
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, Extract(archive, dest))

	st, err := os.Stat(filepath.Join(dest, "mysql", "bin", "mysqld"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o755), st.Mode().Perm())
	st, err = os.Stat(filepath.Join(dest, "mysql", "share", "errmsg.txt"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), st.Mode().Perm())

	link, err := os.Readlink(filepath.Join(dest, "mysql", "bin", "mysqld-latest"))
	require.NoError(t, err)
	assert.Equal(t, "mysqld", link)

	_, err = os.Stat(archive)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestExtractUnsupportedLeavesNoTrace(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "adminer.php")
	require.NoError(t, os.WriteFile(archive, []byte("<?php"), 0o644))
	dest := filepath.Join(dir, "never-created")

	err := Extract(archive, dest)
	require.True(t, errors.Is(err, ErrUnsupportedFormat), "err=%v", err)

	_, statErr := os.Stat(dest)
	assert.True(t, errors.Is(statErr, fs.ErrNotExist), "dest dir must not be created")
	_, statErr = os.Stat(archive)
	assert.NoError(t, statErr, "archive must be left alone")
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()

	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, []tarEntry{{name: "../escape.txt", body: "x", mode: 0o644, typeflag: tar.TypeReg}})
	err := Extract(archive, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal")
	_, statErr := os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, errors.Is(statErr, fs.ErrNotExist))
	_, statErr = os.Stat(archive)
	assert.NoError(t, statErr, "failed extraction keeps the archive for the caller to clean up")

	zipArchive := filepath.Join(dir, "evil.zip")
	writeZip(t, zipArchive, map[string]string{"../../escape.txt": "x"})
	require.Error(t, Extract(zipArchive, filepath.Join(dir, "out2")))

	linkArchive := filepath.Join(dir, "link.tar.gz")
	writeTarGz(t, linkArchive, []tarEntry{{name: "passwd", typeflag: tar.TypeSymlink, linkname: "../../etc/passwd"}})
	require.Error(t, Extract(linkArchive, filepath.Join(dir, "out3")))
}

func TestExtractCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "broken.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("not gzip"), 0o644))
	require.Error(t, Extract(archive, filepath.Join(dir, "out")))

	zipArchive := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(zipArchive, []byte("not zip"), 0o644))
	require.Error(t, Extract(zipArchive, filepath.Join(dir, "out")))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "adminer.php")
	require.NoError(t, os.WriteFile(src, []byte("<?php echo 1;"), 0o644))
	dst := filepath.Join(dir, "www", "adminer.php")

	require.NoError(t, CopyFile(src, dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "<?php echo 1;", string(b))
	_, err = os.Stat(src)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.Error(t, CopyFile(filepath.Join(dir, "missing"), dst))
}
