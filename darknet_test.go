package cococonv

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDarknetLabelString(t *testing.T) {
	tests := []struct {
		label    DarknetLabel
		expected string
	}{
		{DarknetLabel{Class: 0, CX: 0.5, CY: 0.5, Width: 1, Height: 1}, "0 0.50000 0.50000 1.00000 1.00000"},
		{DarknetLabel{Class: 12, CX: 0.123456, CY: 0.000004, Width: 0.1, Height: 0.99999}, "12 0.12346 0.00000 0.10000 0.99999"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.label.String())
	}
}

func TestWriteDarknetLabels(t *testing.T) {
	dir := t.TempDir()

	t.Run("one line per label", func(t *testing.T) {
		path := filepath.Join(dir, "a.txt")
		labels := []DarknetLabel{
			{Class: 1, CX: 0.25, CY: 0.2, Width: 0.3, Height: 0.2},
			{Class: 0, CX: 0.5, CY: 0.5, Width: 1, Height: 1},
		}

		n, err := WriteDarknetLabels(path, slices.Values(labels))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "1 0.25000 0.20000 0.30000 0.20000\n0 0.50000 0.50000 1.00000 1.00000\n",
			string(data))
	})

	t.Run("no labels gives an empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.txt")

		n, err := WriteDarknetLabels(path, slices.Values([]DarknetLabel(nil)))
		require.NoError(t, err)
		assert.Zero(t, n)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Zero(t, info.Size())
	})

	t.Run("unwritable path", func(t *testing.T) {
		path := filepath.Join(dir, "missing", "a.txt")

		_, err := WriteDarknetLabels(path, slices.Values([]DarknetLabel{{}}))
		var ioErr *IOError
		require.True(t, errors.As(err, &ioErr), "got %v", err)
		assert.Equal(t, path, ioErr.Path)
	})
}

func TestWriteDarknetNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), NamesFileName)

	require.NoError(t, WriteDarknetNames(path, []string{"zebra", "cat", "dog"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zebra\ncat\ndog\n", string(data))
}

func TestWriteDarknetData(t *testing.T) {
	path := filepath.Join(t.TempDir(), DataFileName)

	require.NoError(t, WriteDarknetData(path, 2, "out/train.txt", "out/val.txt",
		"out/category.names", "out/backup"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "classes = 2\ntrain = out/train.txt\nvalid = out/val.txt\n"+
		"names = out/category.names\nbackup = out/backup\n", string(data))
}

func TestImageList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.txt")

	list, err := createImageList(path)
	require.NoError(t, err)
	require.NoError(t, list.add("out/train/a.jpg"))
	require.NoError(t, list.add("out/train/b.jpg"))
	require.NoError(t, list.Close())
	assert.Equal(t, 2, list.n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "out/train/a.jpg\nout/train/b.jpg\n", string(data))
}
