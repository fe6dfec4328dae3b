package testing

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/kstore/lib/storage"
)

// RunBackendBenchmarks runs all benchmarks for a storage backend
func RunBackendBenchmarks(b *testing.B, name string, factory BackendFactory) {

	b.Run("Append", func(b *testing.B) {
		benchmarkAppend(b, factory(b.TempDir()), 1024)
	})

	b.Run("AppendSmall", func(b *testing.B) {
		benchmarkAppend(b, factory(b.TempDir()), 1)
	})

	b.Run("AppendSync", func(b *testing.B) {
		benchmarkAppendSync(b, factory(b.TempDir()))
	})

	b.Run("ReadAt", func(b *testing.B) {
		benchmarkReadAt(b, factory(b.TempDir()))
	})

	b.Run("OpenDataset", func(b *testing.B) {
		benchmarkOpenDataset(b, factory(b.TempDir()))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkDataset(b *testing.B, backend storage.Backend) (storage.Namespace, storage.Dataset) {
	b.Helper()
	ns := openProduct(b, backend, "bench")
	b.Cleanup(func() {
		_ = ns.Remove()
	})
	return ns, openDataset(b, ns, storage.CollectionID("bench"))
}

// Benchmark for Append with batches of n records, synced once at the end
func benchmarkAppend(b *testing.B, backend storage.Backend, n uint64) {
	_, ds := benchmarkDataset(b, backend)
	batch := records(0, n)

	b.SetBytes(int64(len(batch)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ds.Append(batch); err != nil {
			b.Fatal(err)
		}
	}
	if err := ds.Sync(); err != nil {
		b.Fatal(err)
	}
}

// Benchmark for Append followed by Sync, the cost of one flush
func benchmarkAppendSync(b *testing.B, backend storage.Backend) {
	_, ds := benchmarkDataset(b, backend)
	batch := records(0, 1024)

	b.SetBytes(int64(len(batch)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ds.Append(batch); err != nil {
			b.Fatal(err)
		}
		if err := ds.Sync(); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for sequential reads in pages of 1024 records
func benchmarkReadAt(b *testing.B, backend storage.Backend) {
	_, ds := benchmarkDataset(b, backend)
	const total = 1 << 16
	for i := uint64(0); i < total; i += 1024 {
		if err := ds.Append(records(i, 1024)); err != nil {
			b.Fatal(err)
		}
	}
	if err := ds.Sync(); err != nil {
		b.Fatal(err)
	}

	page := make([]byte, 1024*testRecordSize)
	b.SetBytes(int64(len(page)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		first := uint64(i*1024) % total
		if _, err := ds.ReadAt(page, first); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for creating datasets in a product
func benchmarkOpenDataset(b *testing.B, backend storage.Backend) {
	ns, _ := benchmarkDataset(b, backend)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ns.Dataset(storage.CollectionID(fmt.Sprintf("ds-%d", i)), testCodec, testRecordSize); err != nil {
			b.Fatal(err)
		}
	}
}
