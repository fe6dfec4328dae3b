package flatfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemBackend(t *testing.T) (storage.Backend, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewBackend(&Options{BaseDir: "/data", Fs: fs}), fs
}

func TestPartialRecordIsTruncated(t *testing.T) {
	backend, fs := newMemBackend(t)

	ns, err := backend.OpenProduct("product", false)
	require.NoError(t, err)
	ds, err := ns.Dataset(storage.CollectionID("solid"), "uint64", 8)
	require.NoError(t, err)
	require.NoError(t, ds.Append(make([]byte, 16)))
	require.NoError(t, ds.Sync())
	require.NoError(t, ns.Close())

	// simulate a crash in the middle of a record
	path := "/data/product/solid.col"
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ns, err = backend.OpenProduct("product", false)
	require.NoError(t, err)
	defer ns.Close()
	ds, err = ns.Dataset(storage.CollectionID("solid"), "uint64", 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ds.Count())

	stat, err := fs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(16), stat.Size())
}

func TestMemberFileLayout(t *testing.T) {
	backend, fs := newMemBackend(t)

	ns, err := backend.OpenProduct("product", false)
	require.NoError(t, err)
	defer ns.Close()
	require.NoError(t, ns.CreatePartition("parts", 12))
	_, err = ns.Dataset(storage.MemberID("parts", 11), "uint64", 8)
	require.NoError(t, err)

	exists, err := afero.Exists(fs, filepath.Join("/data/product/parts", "parts-011.col"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = afero.Exists(fs, "/data/product/product.yaml")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestForeignPathsConflict(t *testing.T) {
	backend, fs := newMemBackend(t)

	require.NoError(t, afero.WriteFile(fs, "/data/file", []byte("x"), 0o644))
	_, err := backend.OpenProduct("file", false)
	assert.ErrorIs(t, err, storage.ErrNameConflict)

	require.NoError(t, afero.WriteFile(fs, "/data/dir/foreign.txt", []byte("x"), 0o644))
	_, err = backend.OpenProduct("dir", false)
	assert.ErrorIs(t, err, storage.ErrNameConflict)

	require.NoError(t, afero.WriteFile(fs, "/data/broken/product.yaml", []byte("backend: container\nversion: 1\n"), 0o644))
	_, err = backend.OpenProduct("broken", false)
	assert.ErrorIs(t, err, storage.ErrNameConflict)

	// deleteExisting wipes whatever was there
	ns, err := backend.OpenProduct("dir", true)
	require.NoError(t, err)
	assert.NoError(t, ns.Close())

	// an empty directory is adopted
	require.NoError(t, fs.MkdirAll("/data/empty", 0o755))
	ns, err = backend.OpenProduct("empty", false)
	require.NoError(t, err)
	assert.NoError(t, ns.Close())
}

func TestFailedManifestWriteLeavesCatalogUnchanged(t *testing.T) {
	fs := afero.NewMemMapFs()
	backend := NewBackend(&Options{BaseDir: "/data", Fs: fs})
	ns, err := backend.OpenProduct("product", false)
	require.NoError(t, err)

	// a read only view makes every manifest write fail
	impl := ns.(*namespaceImpl)
	impl.fs = afero.NewReadOnlyFs(fs)

	assert.ErrorIs(t, ns.CreatePartition("parts", 2), storage.ErrIOFailure)
	_, found, err := ns.PartitionArity("parts")
	require.NoError(t, err)
	assert.False(t, found)
}
