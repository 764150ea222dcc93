package harvest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalName(t *testing.T) {
	require.Equal(t, "img00000.jpg", CanonicalName(0))
	require.Equal(t, "img00042.jpg", CanonicalName(42))
	require.Equal(t, "img99999.jpg", CanonicalName(MaxIndex))
	require.Equal(t, "img100000.jpg", CanonicalName(MaxIndex+1))
}

func TestParseCanonical(t *testing.T) {
	idx, ok := ParseCanonical("img00017.jpg")
	require.True(t, ok)
	require.Equal(t, Counter(17), idx)

	idx, ok = ParseCanonical("img100000.jpg")
	require.True(t, ok)
	require.Equal(t, Counter(100000), idx)

	for _, name := range []string{"img0001.jpg", "img00001.JPG", "IMG00001.jpg", "img00001.jpeg", "capt0001.jpg", "img00001.jpg.tmp"} {
		_, ok := ParseCanonical(name)
		require.False(t, ok, name)
	}
}

func TestRecoverEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "raw"), 0o755))

	next, err := Recover(dir, "raw")
	require.NoError(t, err)
	require.Equal(t, Counter(0), next)
}

func TestRecoverIgnoresCreationOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "raw"), 0o755))
	for _, idx := range []Counter{3, 0, 5, 1, 4, 2} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, CanonicalName(idx)), nil, 0o644))
	}

	next, err := Recover(dir, "raw")
	require.NoError(t, err)
	require.Equal(t, Counter(6), next)
}

func TestRecoverUsesHighestIndexEvenWithGaps(t *testing.T) {
	dir := t.TempDir()
	for _, idx := range []Counter{0, 9} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, CanonicalName(idx)), nil, 0o644))
	}

	next, err := Recover(dir, "raw")
	require.NoError(t, err)
	require.Equal(t, Counter(10), next)
}

func TestRecoverRejectsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CanonicalName(0)), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))

	_, err := Recover(dir, "raw")
	require.ErrorIs(t, err, ErrNonCanonical)

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err, "recovery must not touch foreign files")
}

func TestRecoverRejectsForeignDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "thumbnails"), 0o755))

	_, err := Recover(dir, "raw")
	require.ErrorIs(t, err, ErrNonCanonical)
}
