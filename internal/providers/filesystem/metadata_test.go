package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadableSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1050, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048575, "1.0 MiB"},
		{1 << 20, "1.0 MiB"},
		{5 * (1 << 30), "5.0 GiB"},
		{3 << 40, "3.0 TiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReadableSize(tt.n), "ReadableSize(%d)", tt.n)
	}
}

func TestAggregateFolder(t *testing.T) {
	svc, root := newTestService(t, nil)
	reportsFixture(t, root)
	writeFile(t, root, "Reports/2024/deep.bin", 24)

	r, err := svc.Resolver().Resolve("Reports")
	require.NoError(t, err)

	folder, err := svc.Aggregator().AggregateFolder(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Equal(t, "Reports", folder.Name)
	assert.Equal(t, "Reports", folder.FullPath)
	assert.Equal(t, int64(1024), folder.Size)
	assert.Equal(t, "1.0 KiB", folder.ReadableSize)
	assert.Equal(t, 3, folder.ItemCount)
	assert.True(t, folder.IsDirectory)

	again, err := svc.Aggregator().AggregateFolder(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Equal(t, folder, again)
}

func TestAggregateFolderIgnoresStagedUploads(t *testing.T) {
	svc, root := newTestService(t, nil)
	writeFile(t, root, "box/a.txt", 10)
	writeFile(t, root, "box/"+uploadPrefix+"pending", 500)

	r, err := svc.Resolver().Resolve("box")
	require.NoError(t, err)
	folder, err := svc.Aggregator().AggregateFolder(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), folder.Size)
	assert.Equal(t, 1, folder.ItemCount)
}

func TestAggregateFolderRejectsFile(t *testing.T) {
	svc, root := newTestService(t, nil)
	writeFile(t, root, "notes.txt", 5)

	r, err := svc.Resolver().Resolve("notes.txt")
	require.NoError(t, err)
	_, err = svc.Aggregator().AggregateFolder(context.Background(), r, nil)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestSizesStopsEarly(t *testing.T) {
	root := t.TempDir()
	for i := range 20 {
		writeFile(t, root, filepath.Join("d", string(rune('a'+i))+".txt"), 1)
	}
	agg := NewAggregator(4, nil)

	seen := 0
	for range agg.Sizes(context.Background(), root) {
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)

	total := 0
	for range agg.Sizes(context.Background(), root) {
		total++
	}
	assert.Equal(t, 20, total)
}

func TestDescribeFile(t *testing.T) {
	svc, root := newTestService(t, nil)
	writeFile(t, root, "Docs/Report.PDF", 2048)
	mtime := time.Date(2024, 3, 1, 12, 30, 45, 0, time.FixedZone("x", 3600))
	require.NoError(t, os.Chtimes(filepath.Join(root, "Docs", "Report.PDF"), mtime, mtime))

	r, err := svc.Resolver().Resolve("Docs/Report.PDF")
	require.NoError(t, err)
	e, err := svc.Aggregator().Describe(context.Background(), r, nil)
	require.NoError(t, err)

	f, ok := e.(*FileInfo)
	require.True(t, ok)
	assert.Equal(t, "Report.PDF", f.Name)
	assert.Equal(t, "Docs/Report.PDF", f.FullPath)
	assert.Equal(t, "pdf", f.Extension)
	assert.Equal(t, "2.0 KiB", f.ReadableSize)
	assert.Equal(t, "2024-03-01 11:30:45", f.LastModified)
	assert.False(t, f.IsDirectory)
}

func TestDescribeMissing(t *testing.T) {
	svc, _ := newTestService(t, nil)
	r, err := svc.Resolver().Resolve("ghost")
	require.NoError(t, err)
	_, err = svc.Aggregator().Describe(context.Background(), r, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDetectContentType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<!DOCTYPE html><html><body>hi</body></html>"), 0o644))
	assert.Contains(t, DetectContentType(path), "text/html")
	assert.Equal(t, "application/octet-stream", DetectContentType(filepath.Join(dir, "missing")))
}
