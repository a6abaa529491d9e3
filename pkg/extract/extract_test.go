package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExtractAll(t *testing.T) {
	source := t.TempDir()
	writeZip(t, filepath.Join(source, "daily", "BTCUSDT-2020-01-03.zip"), map[string]string{
		"BTCUSDT-2020-01-03.csv": "o,h,l,c",
	})
	writeZip(t, filepath.Join(source, "monthly", "BTCUSDT-2020-01.zip"), map[string]string{
		"BTCUSDT-2020-01.csv": "o,h,l,c,v",
	})

	dest := t.TempDir()
	results, err := New().ExtractAll(context.Background(), source, dest)
	require.NoError(t, err)

	require.Len(t, results, 2)
	for archive, ok := range results {
		assert.True(t, ok, archive)
	}

	// Relative layout is preserved under the extraction root.
	data, err := os.ReadFile(filepath.Join(dest, "daily", "BTCUSDT-2020-01-03.csv"))
	require.NoError(t, err)
	assert.Equal(t, "o,h,l,c", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "monthly", "BTCUSDT-2020-01.csv"))
	require.NoError(t, err)
	assert.Equal(t, "o,h,l,c,v", string(data))
}

func TestExtractAllDerivesSiblingDir(t *testing.T) {
	parent := t.TempDir()
	source := filepath.Join(parent, "downloads")
	writeZip(t, filepath.Join(source, "a.zip"), map[string]string{"a.csv": "1"})

	results, err := New().ExtractAll(context.Background(), source, "")
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = os.Stat(filepath.Join(parent, "downloads"+DefaultDirSuffix, "a.csv"))
	assert.NoError(t, err)
}

func TestExtractAllCorruptArchiveContinues(t *testing.T) {
	source := t.TempDir()
	writeZip(t, filepath.Join(source, "good.zip"), map[string]string{"g.csv": "ok"})
	require.NoError(t, os.WriteFile(filepath.Join(source, "bad.zip"), []byte("not a zip"), 0o644))

	results, err := New().ExtractAll(context.Background(), source, t.TempDir())
	require.NoError(t, err)

	assert.True(t, results[filepath.Join(source, "good.zip")])
	assert.False(t, results[filepath.Join(source, "bad.zip")])
}

func TestExtractAllNoArchives(t *testing.T) {
	results, err := New().ExtractAll(context.Background(), t.TempDir(), "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExtractAllObserver(t *testing.T) {
	source := t.TempDir()
	writeZip(t, filepath.Join(source, "a.zip"), map[string]string{"a.csv": "1"})

	var updates []int
	_, err := New().
		WithObserver(func(completed, total int, label string) {
			assert.Equal(t, 1, total)
			updates = append(updates, completed)
		}).
		ExtractAll(context.Background(), source, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, updates)
}

func TestWriteEntryRejectsEscape(t *testing.T) {
	source := t.TempDir()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.CreateHeader(&zip.FileHeader{Name: "../escape.csv"})
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filepath.Join(source, "evil.zip"), buf.Bytes(), 0o644))

	dest := t.TempDir()
	results, err := New().ExtractAll(context.Background(), source, dest)
	require.NoError(t, err)

	assert.False(t, results[filepath.Join(source, "evil.zip")])
	_, err = os.Stat(filepath.Join(filepath.Dir(dest), "escape.csv"))
	assert.True(t, os.IsNotExist(err))
}
