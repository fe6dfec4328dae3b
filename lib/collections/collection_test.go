package collections

import (
	"testing"

	"github.com/ValentinKolb/kstore/lib/codec"
	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(n int, f func(i int) uint64) []uint64 {
	items := make([]uint64, n)
	for i := range items {
		items[i] = f(i)
	}
	return items
}

func TestRoundTrip(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p := openProduct(t, "roundtrip", kind, opts)

		tests := map[string][]uint64{
			"empty":      nil,
			"single":     {42},
			"duplicates": {7, 7, 7, 1, 7},
			"pages":      sequence(pageRecords*2+17, func(i int) uint64 { return uint64(i) * 31 }),
		}

		for name, items := range tests {
			col, err := GetCollection(p, name, codec.Uint64())
			require.NoError(t, err)

			// mix single and bulk inserts
			half := len(items) / 2
			for _, item := range items[:half] {
				require.NoError(t, col.Insert(item))
			}
			require.NoError(t, col.InsertAll(items[half:]))
			require.NoError(t, col.Flush())

			assert.Equal(t, uint64(len(items)), col.NbItems(), name)
			got, err := Collect(col.Iterator())
			require.NoError(t, err)
			if diff := cmp.Diff(items, got); diff != "" {
				t.Errorf("%s: iteration mismatch (-want +got):\n%s", name, diff)
			}
		}
	})
}

func TestFiveValues(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p := openProduct(t, "five", kind, opts)

		values := []int64{12354684684, 6876436549, 87654351, 6843516877, 68435434874}
		col, err := GetCollection(p, "col", codec.Int64())
		require.NoError(t, err)
		for _, v := range values {
			require.NoError(t, col.Insert(v))
		}
		require.NoError(t, col.Flush())

		assert.Equal(t, uint64(5), col.NbItems())

		it := col.Iterator()
		defer it.Close()
		i := 0
		for it.First(); !it.IsDone(); it.Next() {
			require.Less(t, i, len(values))
			assert.Equal(t, values[i], it.Item())
			i++
		}
		require.NoError(t, it.Err())
		assert.Equal(t, len(values), i)
	})
}

func TestCountExcludesPending(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		opts.PendingLimit = 64 // eight records
		p := openProduct(t, "pending", kind, opts)

		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll(sequence(100, func(i int) uint64 { return uint64(i) })))

		// records beyond the pending limit went to the backend, but nothing is durable
		assert.Equal(t, uint64(0), col.NbItems())
		got, err := Collect(col.Iterator())
		require.NoError(t, err)
		assert.Empty(t, got)

		require.NoError(t, col.Insert(100))
		require.NoError(t, col.Flush())
		assert.Equal(t, uint64(101), col.NbItems())

		got, err = Collect(col.Iterator())
		require.NoError(t, err)
		assert.Equal(t, sequence(101, func(i int) uint64 { return uint64(i) }), got)
	})
}

func TestIteratorSnapshot(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p := openProduct(t, "snapshot", kind, opts)

		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll([]uint64{1, 2, 3}))
		require.NoError(t, col.Flush())

		first := col.Iterator()
		require.NoError(t, col.InsertAll([]uint64{4, 5}))
		require.NoError(t, col.Flush())
		second := col.Iterator()

		got, err := Collect(first)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3}, got)

		got, err = Collect(second)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3, 4, 5}, got)

		// First restarts an iterator
		it := col.Iterator()
		defer it.Close()
		var twice []uint64
		for range 2 {
			for v := range All(it) {
				twice = append(twice, v)
			}
		}
		assert.Len(t, twice, 10)

		assert.NoError(t, it.Close())
		assert.NoError(t, it.Close())
		it.First()
		assert.True(t, it.IsDone())
	})
}

func TestFlushFailureKeepsPending(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p, f := openFaultyProduct(t, kind, opts)

		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll([]uint64{1, 2, 3}))
		require.NoError(t, col.Flush())

		require.NoError(t, col.InsertAll([]uint64{4, 5, 6, 7, 8}))
		f.failAppend("col", true)
		err = col.Flush()
		assert.ErrorIs(t, err, storage.ErrIOFailure)
		assert.ErrorIs(t, err, errDiskFull)
		assert.Equal(t, uint64(3), col.NbItems())

		f.failAppend("col", false)
		require.NoError(t, col.Flush())
		assert.Equal(t, uint64(8), col.NbItems())

		got, err := Collect(col.Iterator())
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8}, got)
	})
}

func TestSyncFailureDoesNotDuplicate(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p, f := openFaultyProduct(t, kind, opts)

		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll([]uint64{1, 2}))

		f.failSync("col", true)
		assert.ErrorIs(t, col.Flush(), storage.ErrIOFailure)
		assert.Equal(t, uint64(0), col.NbItems())

		// a retry must not append the records a second time
		assert.ErrorIs(t, col.Flush(), storage.ErrIOFailure)
		f.failSync("col", false)
		require.NoError(t, col.Flush())

		got, err := Collect(col.Iterator())
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2}, got)
	})
}

func TestFailedSpillRejectsInsert(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		opts.PendingLimit = 32 // four records
		p, f := openFaultyProduct(t, kind, opts)

		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll([]uint64{1, 2, 3}))

		f.failAppend("col", true)
		assert.ErrorIs(t, col.Insert(4), storage.ErrIOFailure)
		assert.ErrorIs(t, col.InsertAll([]uint64{4, 5, 6}), storage.ErrIOFailure)

		f.failAppend("col", false)
		require.NoError(t, col.Insert(9))
		require.NoError(t, col.Flush())

		got, err := Collect(col.Iterator())
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3, 9}, got)
	})
}

func TestRemoveCollection(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p := openProduct(t, "remove", kind, opts)

		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll([]uint64{1, 2, 3}))
		require.NoError(t, col.Flush())

		require.NoError(t, col.Remove())
		require.NoError(t, col.Remove())

		assert.ErrorIs(t, col.Insert(1), storage.ErrResourceGone)
		assert.ErrorIs(t, col.InsertAll([]uint64{1}), storage.ErrResourceGone)
		assert.ErrorIs(t, col.Flush(), storage.ErrResourceGone)
		assert.Equal(t, uint64(0), col.NbItems())
		_, err = Collect(col.Iterator())
		assert.ErrorIs(t, err, storage.ErrResourceGone)

		// the name is free again and starts empty
		fresh, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		assert.Equal(t, uint64(0), fresh.NbItems())
	})
}

func TestReopenDurability(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p, err := OpenOrCreate("durable", kind, false, opts)
		require.NoError(t, err)
		col, err := GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		require.NoError(t, col.InsertAll([]uint64{10, 20, 30}))
		require.NoError(t, col.Flush())
		require.NoError(t, p.Close())

		p = openProduct(t, "durable", kind, opts)
		col, err = GetCollection(p, "col", codec.Uint64())
		require.NoError(t, err)
		assert.Equal(t, uint64(3), col.NbItems())

		require.NoError(t, col.Insert(40))
		require.NoError(t, col.Flush())
		got, err := Collect(col.Iterator())
		require.NoError(t, err)
		assert.Equal(t, []uint64{10, 20, 30, 40}, got)
	})
}

type kmer [3]uint64

func TestBorshRecords(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind storage.Kind, opts *Options) {
		p := openProduct(t, "borsh", kind, opts)

		col, err := GetCollection(p, "kmers", codec.MustBorsh[kmer]())
		require.NoError(t, err)
		items := []kmer{{1, 2, 3}, {4, 5, 6}, {^uint64(0), 0, 1}}
		require.NoError(t, col.InsertAll(items))
		require.NoError(t, col.Flush())

		got, err := Collect(col.Iterator())
		require.NoError(t, err)
		if diff := cmp.Diff(items, got); diff != "" {
			t.Errorf("kmer mismatch (-want +got):\n%s", diff)
		}
	})
}
