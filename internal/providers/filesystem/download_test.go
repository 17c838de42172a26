package filesystem

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/providers/permissions"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFile(t *testing.T) {
	svc, root := newTestService(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(root, "page.html"), []byte("<html><body>hi</body></html>"), 0o644))

	d, err := svc.Download(context.Background(), admin, DownloadRequest{Path: "page.html"})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, "page.html", d.Name)
	assert.False(t, d.Archive)
	assert.Contains(t, d.ContentType, "text/html")
	assert.Equal(t, int64(28), d.Size)

	var buf bytes.Buffer
	n, err := d.Stream(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(28), n)
	assert.Equal(t, "<html><body>hi</body></html>", buf.String())
}

func TestDownloadCancelled(t *testing.T) {
	svc, root := newTestService(t, nil)
	writeFile(t, root, "big.bin", 1<<20)

	d, err := svc.Download(context.Background(), admin, DownloadRequest{Path: "big.bin"})
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := d.Stream(ctx, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestDownloadErrors(t *testing.T) {
	svc, root := newTestService(t, func(c *Config) { c.ArchiveDownloads = false })
	mkdir(t, root, "folder")
	writeFile(t, root, "users/bob/private.txt", 1)

	_, err := svc.Download(context.Background(), admin, DownloadRequest{Path: "folder"})
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = svc.Download(context.Background(), admin, DownloadRequest{Path: "missing.txt"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Download(context.Background(), alice, DownloadRequest{Path: "users/bob/private.txt"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Download(context.Background(), admin, DownloadRequest{Path: "../../etc/passwd"})
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestOpenRejectsFolder(t *testing.T) {
	svc, root := newTestService(t, nil)
	mkdir(t, root, "folder")

	_, err := svc.Open(context.Background(), admin, "folder")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func archiveFixture(t *testing.T, root string) {
	t.Helper()
	writeFile(t, root, "Reports/b.csv", 40)
	writeFile(t, root, "Reports/a.csv", 30)
	writeFile(t, root, "Reports/2024/z.txt", 20)
	writeFile(t, root, "Reports/"+uploadPrefix+"tmp", 5)
	require.NoError(t, os.Symlink(filepath.Join(root, "Reports", "a.csv"), filepath.Join(root, "Reports", "link.csv")))
}

func streamArchive(t *testing.T, svc *Service, who permissions.Identity, req DownloadRequest) (*Download, []byte) {
	t.Helper()
	d, err := svc.Download(context.Background(), who, req)
	require.NoError(t, err)
	defer d.Close()
	var buf bytes.Buffer
	_, err = d.Stream(context.Background(), &buf)
	require.NoError(t, err)
	return d, buf.Bytes()
}

func TestDownloadFolderZipDeterministic(t *testing.T) {
	svc, root := newTestService(t, nil)
	archiveFixture(t, root)

	d, first := streamArchive(t, svc, admin, DownloadRequest{Path: "Reports"})
	assert.True(t, d.Archive)
	assert.Equal(t, "Reports.zip", d.Name)
	assert.Equal(t, "application/zip", d.ContentType)
	assert.Equal(t, int64(-1), d.Size)

	_, second := streamArchive(t, svc, admin, DownloadRequest{Path: "Reports"})
	assert.Equal(t, first, second)

	zr, err := zip.NewReader(bytes.NewReader(first), int64(len(first)))
	require.NoError(t, err)
	var members []string
	for _, f := range zr.File {
		members = append(members, f.Name)
		assert.Zero(t, f.Modified.Nanosecond())
	}
	assert.Equal(t, []string{
		"Reports/",
		"Reports/2024/",
		"Reports/2024/z.txt",
		"Reports/a.csv",
		"Reports/b.csv",
	}, members)

	rc, err := zr.File[3].Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Len(t, data, 30)
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestDownloadFolderLeavesOutUnreadableSubtrees(t *testing.T) {
	svc, root := newTestService(t, nil)
	writeFile(t, root, "users/alice/secret.txt", 5)
	writeFile(t, root, "users/bob/mine.txt", 3)
	writeFile(t, root, "groups/finance/plan.txt", 7)

	_, data := streamArchive(t, svc, bob, DownloadRequest{Path: "users"})
	assert.Equal(t, []string{"users/", "users/bob/", "users/bob/mine.txt"}, zipNames(t, data))

	_, data = streamArchive(t, svc, bob, DownloadRequest{Format: FormatTarGz})
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"root/", "root/groups/", "root/users/", "root/users/bob/", "root/users/bob/mine.txt"},
		readTarNames(t, gz))

	_, data = streamArchive(t, svc, alice, DownloadRequest{Path: "groups"})
	assert.Equal(t, []string{"groups/", "groups/finance/", "groups/finance/plan.txt"}, zipNames(t, data))

	_, data = streamArchive(t, svc, admin, DownloadRequest{Path: "users"})
	assert.Contains(t, zipNames(t, data), "users/alice/secret.txt")
}

func TestDownloadRootArchiveName(t *testing.T) {
	svc, root := newTestService(t, nil)
	writeFile(t, root, "x.txt", 1)

	d, data := streamArchive(t, svc, admin, DownloadRequest{})
	assert.Equal(t, "root.zip", d.Name)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "root/x.txt", zr.File[1].Name)
}

func readTarNames(t *testing.T, r io.Reader) []string {
	t.Helper()
	tr := tar.NewReader(r)
	var names []string
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, h.Name)
	}
	return names
}

func TestDownloadFolderTarFormats(t *testing.T) {
	svc, root := newTestService(t, nil)
	archiveFixture(t, root)
	want := []string{"Reports/", "Reports/2024/", "Reports/2024/z.txt", "Reports/a.csv", "Reports/b.csv"}

	d, data := streamArchive(t, svc, admin, DownloadRequest{Path: "Reports", Format: "tgz"})
	assert.Equal(t, "Reports.tar.gz", d.Name)
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, want, readTarNames(t, gz))

	d, data = streamArchive(t, svc, admin, DownloadRequest{Path: "Reports", Format: FormatTarZst})
	assert.Equal(t, "application/zstd", d.ContentType)
	zr, err := zstd.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer zr.Close()
	assert.Equal(t, want, readTarNames(t, zr))
}

func TestDownloadUnknownFormat(t *testing.T) {
	svc, root := newTestService(t, nil)
	mkdir(t, root, "folder")

	_, err := svc.Download(context.Background(), admin, DownloadRequest{Path: "folder", Format: "rar"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseArchiveFormat(t *testing.T) {
	for in, want := range map[string]ArchiveFormat{
		"zip": FormatZip, "ZIP": FormatZip, "tar.gz": FormatTarGz, "tgz": FormatTarGz,
		"tar.zst": FormatTarZst, " tzst ": FormatTarZst,
	} {
		got, err := ParseArchiveFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseArchiveFormat("7z")
	assert.Error(t, err)
}
