package collections

import (
	"os"
	"sync"
	"testing"

	"github.com/ValentinKolb/kstore/lib/codec"
	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/ValentinKolb/kstore/lib/storage/engines/flatfile"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameHandle(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p := openProduct(t, "handles", kind, opts)

		a, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		b, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		assert.Same(t, a.(*collectionImpl[uint64]), b.(*collectionImpl[uint64]))

		pa, err := GetPartition(p, "parts", 3, codec.Uint64())
		require.NoError(t, err)
		pb, err := GetPartition(p, "parts", 3, codec.Uint64())
		require.NoError(t, err)
		assert.Same(t, pa, pb)
	})
}

func TestConcurrentGetCollection(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p := openProduct(t, "concurrent", kind, opts)

		handles := make([]Collection[uint64], 16)
		var wg sync.WaitGroup
		for i := range handles {
			wg.Add(1)
			go func() {
				defer wg.Done()
				col, err := GetCollection(p, "col", codec.Uint64())
				assert.NoError(t, err)
				handles[i] = col
			}()
		}
		wg.Wait()

		for _, h := range handles {
			assert.Same(t, handles[0].(*collectionImpl[uint64]), h.(*collectionImpl[uint64]))
		}
	})
}

func TestNameConflicts(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p, err := OpenOrCreate("conflicts", kind, false, opts)
		require.NoError(t, err)

		_, err = GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		_, err = GetPartition(p, "parts", 2, codec.Uint64())
		require.NoError(t, err)

		_, err = GetCollection(p, "col", codec.Uint32())
		assert.ErrorIs(t, err, storage.ErrNameConflict)
		_, err = GetCollection(p, "col", codec.Int64())
		assert.ErrorIs(t, err, storage.ErrNameConflict)
		_, err = GetPartition(p, "col", 2, codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrNameConflict)
		_, err = GetCollection(p, "parts", codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrNameConflict)
		_, err = GetPartition(p, "parts", 2, codec.Uint32())
		assert.ErrorIs(t, err, storage.ErrNameConflict)
		require.NoError(t, p.Close())

		// the catalog of the backend remembers names and codecs
		p = openProduct(t, "conflicts", kind, opts)
		_, err = GetCollection(p, "col", codec.Uint32())
		assert.ErrorIs(t, err, storage.ErrNameConflict)
		_, err = GetCollection(p, "parts", codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrNameConflict)
		_, err = GetPartition(p, "col", 2, codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrNameConflict)
	})
}

func TestArityMismatch(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p, err := OpenOrCreate("arity", kind, false, opts)
		require.NoError(t, err)

		_, err = GetPartition(p, "parts", 3, codec.Uint64())
		require.NoError(t, err)
		_, err = GetPartition(p, "parts", 4, codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrPartitionArityMismatch)
		_, err = GetPartition(p, "zero", 0, codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrInvalidArgument)
		require.NoError(t, p.Close())

		p = openProduct(t, "arity", kind, opts)
		_, err = GetPartition(p, "parts", 4, codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrPartitionArityMismatch)
		part, err := GetPartition(p, "parts", 3, codec.Uint64())
		require.NoError(t, err)
		assert.Equal(t, 3, part.Size())
	})
}

func TestRemoveProduct(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p, err := OpenOrCreate("removed", kind, false, opts)
		require.NoError(t, err)

		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll([]uint64{1, 2, 3}))
		require.NoError(t, col.Flush())
		part, err := GetPartition(p, "parts", 4, codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, part.At(2).Insert(7))
		require.NoError(t, part.Flush())

		require.NoError(t, p.Remove())
		require.NoError(t, p.Remove())
		require.NoError(t, p.Close())

		_, err = GetCollection(p, "col", codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrResourceGone)
		_, err = GetPartition(p, "parts", 4, codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrResourceGone)
		assert.ErrorIs(t, col.Insert(4), storage.ErrResourceGone)
		assert.ErrorIs(t, part.Flush(), storage.ErrResourceGone)
		_, err = p.Datasets()
		assert.ErrorIs(t, err, storage.ErrResourceGone)

		// nothing is left on disk
		entries, err := os.ReadDir(opts.BaseDir)
		require.NoError(t, err)
		assert.Empty(t, entries)

		// reopening never resurrects the old records
		p = openProduct(t, "removed", kind, opts)
		col, err = GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		assert.Equal(t, uint64(0), col.NbItems())
		part, err = GetPartition(p, "parts", 4, codec.Uint64())
		require.NoError(t, err)
		assert.Equal(t, uint64(0), part.NbItems())
	})
}

func TestDeleteExisting(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p, err := OpenOrCreate("wiped", kind, false, opts)
		require.NoError(t, err)
		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll([]uint64{1, 2, 3}))
		require.NoError(t, col.Flush())
		require.NoError(t, p.Close())

		p, err = OpenOrCreate("wiped", kind, true, opts)
		require.NoError(t, err)
		defer p.Close()

		infos, err := p.Datasets()
		require.NoError(t, err)
		assert.Empty(t, infos)

		// the record type may change after a wipe
		_, err = GetCollection(p, "col", codec.Uint32())
		assert.NoError(t, err)
	})
}

func TestAutoRemove(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		opts.AutoRemove = true
		p, err := OpenOrCreate("temporary", kind, false, opts)
		require.NoError(t, err)
		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.Insert(1))
		require.NoError(t, col.Flush())

		require.NoError(t, p.Close())

		entries, err := os.ReadDir(opts.BaseDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestUseAfterClose(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p, err := OpenOrCreate("closed", kind, false, opts)
		require.NoError(t, err)
		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.Insert(1))

		require.NoError(t, p.Close())
		require.NoError(t, p.Close())

		assert.ErrorIs(t, col.Insert(2), storage.ErrResourceGone)
		_, err = GetCollection(p, "col", codec.Uint64())
		assert.ErrorIs(t, err, storage.ErrResourceGone)
	})
}

func TestProductInfo(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p := openProduct(t, "info", kind, opts)
		assert.Equal(t, "info", p.Name())
		assert.Equal(t, kind, p.Kind())

		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll([]uint64{1, 2}))
		require.NoError(t, col.Flush())
		_, err = GetPartition(p, "parts", 2, codec.Uint32())
		require.NoError(t, err)

		info := p.Info()
		assert.Equal(t, kind, info.Kind)
		assert.Equal(t, map[string]int{"parts": 2}, info.Partitions)

		infos, err := p.Datasets()
		require.NoError(t, err)
		require.Len(t, infos, 3)
		assert.Equal(t, storage.CollectionID("col"), infos[0].ID)
		assert.Equal(t, uint64(2), infos[0].Count)
		assert.Equal(t, "uint32", infos[1].Codec)
	})
}

func TestExplicitBackend(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := DefaultOptions()
	opts.Backend = flatfile.NewBackend(&flatfile.Options{BaseDir: "/mem", Fs: fs})

	// the kind argument is ignored in favour of the backend
	p := openProduct(t, "memory", storage.KindContainer, opts)
	assert.Equal(t, storage.KindFile, p.Kind())

	col, err := GetCollection(p, "col", codec.Uint64())
	require.NoError(t, err)
	require.NoError(t, col.Insert(5))
	require.NoError(t, col.Flush())

	exists, err := afero.Exists(fs, "/mem/memory/col.col")
	require.NoError(t, err)
	assert.True(t, exists)
}
