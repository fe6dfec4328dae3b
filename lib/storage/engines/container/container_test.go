package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsyncedChunksAreDroppedOnReopen(t *testing.T) {
	dir := t.TempDir()
	backend := NewBackend(&Options{BaseDir: dir})

	ns, err := backend.OpenProduct("product", false)
	require.NoError(t, err)
	ds, err := ns.Dataset(storage.CollectionID("solid"), "uint64", 8)
	require.NoError(t, err)
	require.NoError(t, ds.Append(make([]byte, 16)))
	require.NoError(t, ds.Sync())
	require.NoError(t, ds.Append(make([]byte, 24)))
	require.NoError(t, ns.Close())

	ns, err = backend.OpenProduct("product", false)
	require.NoError(t, err)
	defer ns.Close()
	ds, err = ns.Dataset(storage.CollectionID("solid"), "uint64", 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ds.Count())

	// the dropped chunk does not block the next append at the same position
	require.NoError(t, ds.Append(make([]byte, 8)))
	require.NoError(t, ds.Sync())
	assert.Equal(t, uint64(3), ds.Count())
}

func TestForeignFilesConflict(t *testing.T) {
	dir := t.TempDir()
	backend := NewBackend(&Options{BaseDir: dir})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "text"+fileExt), []byte("definitely not sqlite, just some text that is long enough"), 0o644))
	_, err := backend.OpenProduct("text", false)
	assert.ErrorIs(t, err, storage.ErrNameConflict)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir"+fileExt), 0o755))
	_, err = backend.OpenProduct("dir", false)
	assert.ErrorIs(t, err, storage.ErrNameConflict)

	// deleteExisting replaces the foreign file
	ns, err := backend.OpenProduct("text", true)
	require.NoError(t, err)
	assert.NoError(t, ns.Close())
}

func TestSingleFilePerProduct(t *testing.T) {
	dir := t.TempDir()
	backend := NewBackend(&Options{BaseDir: dir})

	ns, err := backend.OpenProduct("product", false)
	require.NoError(t, err)
	require.NoError(t, ns.CreatePartition("parts", 10))
	for i := 0; i < 10; i++ {
		ds, err := ns.Dataset(storage.MemberID("parts", i), "uint64", 8)
		require.NoError(t, err)
		require.NoError(t, ds.Append(make([]byte, 8)))
		require.NoError(t, ds.Sync())
	}

	info := ns.Info()
	assert.Equal(t, filepath.Join(dir, "product"+fileExt), info.Location)
	assert.Positive(t, info.SizeBytes)
	require.NoError(t, ns.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir(), "unexpected directory %s", e.Name())
	}

	require.NoError(t, backend.RemoveProduct("product"))
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
