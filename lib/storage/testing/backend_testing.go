package testing

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/kstore/lib/storage"
)

// BackendFactory creates a backend rooted at dir. Calling it twice with the
// same dir must yield backends that see the same products.
type BackendFactory func(dir string) storage.Backend

const (
	testCodec      = "uint64"
	testRecordSize = 8
)

// RunBackendTests runs the conformance suite for a storage backend.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("AppendSyncRead", func(t *testing.T) {
			testAppendSyncRead(t, factory(t.TempDir()))
		})

		t.Run("CountExcludesUnsynced", func(t *testing.T) {
			testCountExcludesUnsynced(t, factory(t.TempDir()))
		})

		t.Run("ReadAtPaging", func(t *testing.T) {
			testReadAtPaging(t, factory(t.TempDir()))
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory, t.TempDir())
		})

		t.Run("DeleteExisting", func(t *testing.T) {
			testDeleteExisting(t, factory(t.TempDir()))
		})

		t.Run("RemoveProduct", func(t *testing.T) {
			testRemoveProduct(t, factory(t.TempDir()))
		})

		t.Run("Products", func(t *testing.T) {
			testProducts(t, factory(t.TempDir()))
		})

		t.Run("CodecConflict", func(t *testing.T) {
			testCodecConflict(t, factory, t.TempDir())
		})

		t.Run("Partition", func(t *testing.T) {
			testPartition(t, factory, t.TempDir())
		})

		t.Run("DatasetRemove", func(t *testing.T) {
			testDatasetRemove(t, factory(t.TempDir()))
		})

		t.Run("NamespaceRemove", func(t *testing.T) {
			testNamespaceRemove(t, factory(t.TempDir()))
		})

		t.Run("ManyDatasets", func(t *testing.T) {
			testManyDatasets(t, factory(t.TempDir()))
		})

		t.Run("InvalidNames", func(t *testing.T) {
			testInvalidNames(t, factory(t.TempDir()))
		})

		t.Run("InvalidArguments", func(t *testing.T) {
			testInvalidArguments(t, factory(t.TempDir()))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory(t.TempDir()))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// records encodes the values start..start+n-1 as little endian uint64 records
func records(start, n uint64) []byte {
	buf := make([]byte, n*testRecordSize)
	for i := uint64(0); i < n; i++ {
		binary.LittleEndian.PutUint64(buf[i*testRecordSize:], start+i)
	}
	return buf
}

func openProduct(t testing.TB, backend storage.Backend, name string) storage.Namespace {
	t.Helper()
	ns, err := backend.OpenProduct(name, false)
	if err != nil {
		t.Fatalf("OpenProduct(%s) failed: %v", name, err)
	}
	return ns
}

func openDataset(t testing.TB, ns storage.Namespace, id storage.DatasetID) storage.Dataset {
	t.Helper()
	ds, err := ns.Dataset(id, testCodec, testRecordSize)
	if err != nil {
		t.Fatalf("Dataset(%s) failed: %v", id, err)
	}
	return ds
}

func appendSync(t testing.TB, ds storage.Dataset, data []byte) {
	t.Helper()
	if err := ds.Append(data); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := ds.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
}

// readAll reads every durable record of a dataset
func readAll(t testing.TB, ds storage.Dataset) []byte {
	t.Helper()
	out := make([]byte, ds.Count()*testRecordSize)
	n, err := ds.ReadAt(out, 0)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	return out[:n*testRecordSize]
}

func expectCode(t testing.TB, err error, target error, what string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("%s: expected %v, got %v", what, target, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testAppendSyncRead(t *testing.T, backend storage.Backend) {
	ns := openProduct(t, backend, "product")
	defer ns.Close()

	ds := openDataset(t, ns, storage.CollectionID("solid"))
	if ds.Count() != 0 {
		t.Errorf("Expected new dataset to be empty, got %d records", ds.Count())
	}

	appendSync(t, ds, records(0, 3))
	appendSync(t, ds, records(3, 2))

	if ds.Count() != 5 {
		t.Errorf("Expected 5 records, got %d", ds.Count())
	}
	if got := readAll(t, ds); !bytes.Equal(got, records(0, 5)) {
		t.Errorf("Expected records 0..4 in append order, got %v", got)
	}

	// empty appends are no-ops
	if err := ds.Append(nil); err != nil {
		t.Errorf("Expected empty append to succeed, got %v", err)
	}
	if err := ds.Append(make([]byte, testRecordSize+1)); err == nil {
		t.Errorf("Expected append of a partial record to fail")
	}

	// the same handle is returned for the same id
	again := openDataset(t, ns, storage.CollectionID("solid"))
	if again.Count() != 5 {
		t.Errorf("Expected reopened dataset to hold 5 records, got %d", again.Count())
	}
}

func testCountExcludesUnsynced(t *testing.T, backend storage.Backend) {
	ns := openProduct(t, backend, "product")
	defer ns.Close()

	ds := openDataset(t, ns, storage.CollectionID("pending"))
	appendSync(t, ds, records(0, 4))

	if err := ds.Append(records(4, 4)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if ds.Count() != 4 {
		t.Errorf("Expected unsynced records to be excluded from count, got %d", ds.Count())
	}
	if got := readAll(t, ds); !bytes.Equal(got, records(0, 4)) {
		t.Errorf("Expected only synced records to be readable")
	}

	if err := ds.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if ds.Count() != 8 {
		t.Errorf("Expected 8 records after sync, got %d", ds.Count())
	}

	// syncing twice does not change anything
	if err := ds.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if ds.Count() != 8 {
		t.Errorf("Expected 8 records after second sync, got %d", ds.Count())
	}
}

func testReadAtPaging(t *testing.T, backend storage.Backend) {
	ns := openProduct(t, backend, "product")
	defer ns.Close()

	ds := openDataset(t, ns, storage.CollectionID("paged"))
	for i := uint64(0); i < 10; i++ {
		appendSync(t, ds, records(i*10, 10))
	}

	// pages that cross append boundaries
	page := make([]byte, 7*testRecordSize)
	var got []byte
	for first := uint64(0); ; {
		n, err := ds.ReadAt(page, first)
		if err != nil {
			t.Fatalf("ReadAt(%d) failed: %v", first, err)
		}
		if n == 0 {
			break
		}
		got = append(got, page[:n*testRecordSize]...)
		first += uint64(n)
	}
	if !bytes.Equal(got, records(0, 100)) {
		t.Errorf("Expected paged read to return all 100 records in order")
	}

	// reads in the middle of the dataset
	n, err := ds.ReadAt(page, 95)
	if err != nil || n != 5 {
		t.Errorf("Expected 5 records from index 95, got %d (%v)", n, err)
	}
	if !bytes.Equal(page[:n*testRecordSize], records(95, 5)) {
		t.Errorf("Expected records 95..99 from index 95")
	}

	n, err = ds.ReadAt(page, 100)
	if err != nil || n != 0 {
		t.Errorf("Expected end of dataset at index 100, got %d (%v)", n, err)
	}
	n, err = ds.ReadAt(page[:testRecordSize-1], 0)
	if err != nil || n != 0 {
		t.Errorf("Expected no records to fit a short buffer, got %d (%v)", n, err)
	}
}

func testReopen(t *testing.T, factory BackendFactory, dir string) {
	ns := openProduct(t, factory(dir), "product")
	if err := ns.CreatePartition("parts", 3); err != nil {
		t.Fatalf("CreatePartition failed: %v", err)
	}
	appendSync(t, openDataset(t, ns, storage.CollectionID("solid")), records(0, 10))
	appendSync(t, openDataset(t, ns, storage.MemberID("parts", 2)), records(100, 5))
	if err := ns.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ns = openProduct(t, factory(dir), "product")
	defer ns.Close()

	n, found, err := ns.PartitionArity("parts")
	if err != nil || !found || n != 3 {
		t.Errorf("Expected partition parts with 3 members after reopen, got %d %v %v", n, found, err)
	}

	solid := openDataset(t, ns, storage.CollectionID("solid"))
	if got := readAll(t, solid); !bytes.Equal(got, records(0, 10)) {
		t.Errorf("Expected collection content to survive reopen")
	}
	member := openDataset(t, ns, storage.MemberID("parts", 2))
	if got := readAll(t, member); !bytes.Equal(got, records(100, 5)) {
		t.Errorf("Expected member content to survive reopen")
	}

	// appending after reopen continues the sequence
	appendSync(t, solid, records(10, 1))
	if got := readAll(t, solid); !bytes.Equal(got, records(0, 11)) {
		t.Errorf("Expected append after reopen to follow the old records")
	}
}

func testDeleteExisting(t *testing.T, backend storage.Backend) {
	ns := openProduct(t, backend, "product")
	appendSync(t, openDataset(t, ns, storage.CollectionID("solid")), records(0, 10))
	if err := ns.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ns, err := backend.OpenProduct("product", true)
	if err != nil {
		t.Fatalf("OpenProduct with deleteExisting failed: %v", err)
	}
	defer ns.Close()

	infos, err := ns.Datasets()
	if err != nil {
		t.Fatalf("Datasets failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected no datasets after deleteExisting, got %v", infos)
	}
	if ds := openDataset(t, ns, storage.CollectionID("solid")); ds.Count() != 0 {
		t.Errorf("Expected recreated dataset to be empty, got %d records", ds.Count())
	}
}

func testRemoveProduct(t *testing.T, backend storage.Backend) {
	if err := backend.RemoveProduct("missing"); err != nil {
		t.Errorf("Expected removing a missing product to succeed, got %v", err)
	}

	ns := openProduct(t, backend, "product")
	appendSync(t, openDataset(t, ns, storage.CollectionID("solid")), records(0, 10))
	if err := ns.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := backend.RemoveProduct("product"); err != nil {
		t.Fatalf("RemoveProduct failed: %v", err)
	}
	if err := backend.RemoveProduct("product"); err != nil {
		t.Errorf("Expected second RemoveProduct to succeed, got %v", err)
	}

	ns = openProduct(t, backend, "product")
	defer ns.Close()
	infos, err := ns.Datasets()
	if err != nil {
		t.Fatalf("Datasets failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected a fresh product after RemoveProduct, got %v", infos)
	}
}

func testProducts(t *testing.T, backend storage.Backend) {
	names, err := backend.Products()
	if err != nil {
		t.Fatalf("Products failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("Expected no products in a fresh backend, got %v", names)
	}

	for _, name := range []string{"beta", "alpha"} {
		if err := openProduct(t, backend, name).Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}
	names, err = backend.Products()
	if err != nil {
		t.Fatalf("Products failed: %v", err)
	}
	if fmt.Sprint(names) != "[alpha beta]" {
		t.Errorf("Expected [alpha beta], got %v", names)
	}

	if err := backend.RemoveProduct("alpha"); err != nil {
		t.Fatalf("RemoveProduct failed: %v", err)
	}
	names, err = backend.Products()
	if err != nil {
		t.Fatalf("Products failed: %v", err)
	}
	if fmt.Sprint(names) != "[beta]" {
		t.Errorf("Expected [beta] after RemoveProduct, got %v", names)
	}
}

func testCodecConflict(t *testing.T, factory BackendFactory, dir string) {
	ns := openProduct(t, factory(dir), "product")
	openDataset(t, ns, storage.CollectionID("solid"))

	_, err := ns.Dataset(storage.CollectionID("solid"), "uint32", 4)
	expectCode(t, err, storage.ErrNameConflict, "record size mismatch")
	_, err = ns.Dataset(storage.CollectionID("solid"), "int64", testRecordSize)
	expectCode(t, err, storage.ErrNameConflict, "codec mismatch")
	if err := ns.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// the catalog keeps the codec across reopen
	ns = openProduct(t, factory(dir), "product")
	defer ns.Close()
	_, err = ns.Dataset(storage.CollectionID("solid"), "uint32", 4)
	expectCode(t, err, storage.ErrNameConflict, "codec mismatch after reopen")
	openDataset(t, ns, storage.CollectionID("solid"))
}

func testPartition(t *testing.T, factory BackendFactory, dir string) {
	ns := openProduct(t, factory(dir), "product")

	if _, found, err := ns.PartitionArity("parts"); err != nil || found {
		t.Errorf("Expected unknown partition, got found=%v err=%v", found, err)
	}
	if err := ns.CreatePartition("parts", 4); err != nil {
		t.Fatalf("CreatePartition failed: %v", err)
	}
	if err := ns.CreatePartition("parts", 4); err != nil {
		t.Errorf("Expected CreatePartition with the same arity to succeed, got %v", err)
	}
	expectCode(t, ns.CreatePartition("parts", 5), storage.ErrPartitionArityMismatch, "arity 5")

	for i := 0; i < 4; i++ {
		appendSync(t, openDataset(t, ns, storage.MemberID("parts", i)), records(uint64(i), 1))
	}

	_, err := ns.Dataset(storage.MemberID("parts", 4), testCodec, testRecordSize)
	expectCode(t, err, storage.ErrIndexOutOfBounds, "member 4 of 4")
	_, err = ns.Dataset(storage.MemberID("parts", -1), testCodec, testRecordSize)
	expectCode(t, err, storage.ErrIndexOutOfBounds, "member -1")
	_, err = ns.Dataset(storage.MemberID("unknown", 0), testCodec, testRecordSize)
	expectCode(t, err, storage.ErrNameConflict, "member of unknown partition")

	// collections and partitions share one name space
	_, err = ns.Dataset(storage.CollectionID("parts"), testCodec, testRecordSize)
	expectCode(t, err, storage.ErrNameConflict, "collection named like a partition")
	openDataset(t, ns, storage.CollectionID("solid"))
	expectCode(t, ns.CreatePartition("solid", 2), storage.ErrNameConflict, "partition named like a collection")

	if err := ns.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ns = openProduct(t, factory(dir), "product")
	defer ns.Close()
	expectCode(t, ns.CreatePartition("parts", 3), storage.ErrPartitionArityMismatch, "arity 3 after reopen")
	for i := 0; i < 4; i++ {
		ds := openDataset(t, ns, storage.MemberID("parts", i))
		if got := readAll(t, ds); !bytes.Equal(got, records(uint64(i), 1)) {
			t.Errorf("Expected member %d to hold record %d after reopen", i, i)
		}
	}
}

func testDatasetRemove(t *testing.T, backend storage.Backend) {
	ns := openProduct(t, backend, "product")
	defer ns.Close()

	ds := openDataset(t, ns, storage.CollectionID("solid"))
	appendSync(t, ds, records(0, 10))
	openDataset(t, ns, storage.CollectionID("other"))

	if err := ds.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := ds.Remove(); err != nil {
		t.Errorf("Expected second Remove to succeed, got %v", err)
	}
	expectCode(t, ds.Append(records(0, 1)), storage.ErrResourceGone, "append after remove")
	_, err := ds.ReadAt(make([]byte, testRecordSize), 0)
	expectCode(t, err, storage.ErrResourceGone, "read after remove")

	infos, err := ns.Datasets()
	if err != nil {
		t.Fatalf("Datasets failed: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != storage.CollectionID("other") {
		t.Errorf("Expected only dataset other to remain, got %v", infos)
	}

	// the name can be reused
	if fresh := openDataset(t, ns, storage.CollectionID("solid")); fresh.Count() != 0 {
		t.Errorf("Expected recreated dataset to be empty, got %d records", fresh.Count())
	}
}

func testNamespaceRemove(t *testing.T, backend storage.Backend) {
	ns := openProduct(t, backend, "product")
	ds := openDataset(t, ns, storage.CollectionID("solid"))
	appendSync(t, ds, records(0, 10))

	if err := ns.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := ns.Remove(); err != nil {
		t.Errorf("Expected second Remove to succeed, got %v", err)
	}

	expectCode(t, ds.Append(records(0, 1)), storage.ErrResourceGone, "append after product remove")
	expectCode(t, ds.Sync(), storage.ErrResourceGone, "sync after product remove")
	_, err := ns.Dataset(storage.CollectionID("solid"), testCodec, testRecordSize)
	expectCode(t, err, storage.ErrResourceGone, "dataset after product remove")
	_, err = ns.Datasets()
	expectCode(t, err, storage.ErrResourceGone, "datasets after product remove")
	expectCode(t, ns.CreatePartition("parts", 2), storage.ErrResourceGone, "partition after product remove")

	// the product can be recreated from scratch
	fresh := openProduct(t, backend, "product")
	defer fresh.Close()
	if ds := openDataset(t, fresh, storage.CollectionID("solid")); ds.Count() != 0 {
		t.Errorf("Expected recreated product to be empty, got %d records", ds.Count())
	}
}

func testManyDatasets(t *testing.T, backend storage.Backend) {
	ns := openProduct(t, backend, "product")
	defer ns.Close()

	const (
		partitions = 5
		members    = 10
	)
	for p := 0; p < partitions; p++ {
		name := fmt.Sprintf("part%d", p)
		if err := ns.CreatePartition(name, members); err != nil {
			t.Fatalf("CreatePartition(%s) failed: %v", name, err)
		}
		for i := 0; i < members; i++ {
			appendSync(t, openDataset(t, ns, storage.MemberID(name, i)), records(0, uint64(i+1)))
		}
	}

	infos, err := ns.Datasets()
	if err != nil {
		t.Fatalf("Datasets failed: %v", err)
	}
	if len(infos) != partitions*members {
		t.Fatalf("Expected %d datasets, got %d", partitions*members, len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i-1].ID.Path() >= infos[i].ID.Path() {
			t.Errorf("Expected datasets sorted by path, %s before %s", infos[i-1].ID.Path(), infos[i].ID.Path())
		}
	}
	for _, info := range infos {
		if info.Codec != testCodec || info.RecordSize != testRecordSize {
			t.Errorf("Unexpected codec of %s: %s/%d", info.ID, info.Codec, info.RecordSize)
		}
		if info.Count != uint64(info.ID.Index+1) {
			t.Errorf("Expected %d records in %s, got %d", info.ID.Index+1, info.ID, info.Count)
		}
	}
}

func testInvalidNames(t *testing.T, backend storage.Backend) {
	for _, name := range []string{"", ".hidden", "a/b", `a\b`, ".."} {
		_, err := backend.OpenProduct(name, false)
		expectCode(t, err, storage.ErrNameConflict, fmt.Sprintf("product name %q", name))
	}

	ns := openProduct(t, backend, "product")
	defer ns.Close()
	_, err := ns.Dataset(storage.CollectionID("a/b"), testCodec, testRecordSize)
	expectCode(t, err, storage.ErrNameConflict, "collection name a/b")
	expectCode(t, ns.CreatePartition("", 2), storage.ErrNameConflict, "empty partition name")
}

func testInvalidArguments(t *testing.T, backend storage.Backend) {
	ns := openProduct(t, backend, "product")
	defer ns.Close()

	for _, size := range []int{0, -8} {
		_, err := ns.Dataset(storage.CollectionID("solid"), testCodec, size)
		expectCode(t, err, storage.ErrInvalidArgument, fmt.Sprintf("record size %d", size))
	}
	expectCode(t, ns.CreatePartition("parts", 0), storage.ErrInvalidArgument, "partition with 0 members")
	if _, found, err := ns.PartitionArity("parts"); err != nil || found {
		t.Errorf("Expected no partition after a rejected CreatePartition, got found=%v err=%v", found, err)
	}

	ds := openDataset(t, ns, storage.CollectionID("solid"))
	expectCode(t, ds.Append(make([]byte, testRecordSize+3)), storage.ErrInvalidArgument, "partial record append")
	if err := ds.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if n := ds.Count(); n != 0 {
		t.Errorf("Expected a rejected append to leave the dataset empty, got %d records", n)
	}
}

func testInfo(t *testing.T, backend storage.Backend) {
	ns := openProduct(t, backend, "product")
	defer ns.Close()

	if err := ns.CreatePartition("parts", 2); err != nil {
		t.Fatalf("CreatePartition failed: %v", err)
	}
	appendSync(t, openDataset(t, ns, storage.CollectionID("solid")), records(0, 100))

	info := ns.Info()
	if info.Kind != backend.Kind() {
		t.Errorf("Expected kind %s, got %s", backend.Kind(), info.Kind)
	}
	if info.Product != "product" {
		t.Errorf("Expected product name product, got %s", info.Product)
	}
	if info.Partitions["parts"] != 2 {
		t.Errorf("Expected partition parts with 2 members in info, got %v", info.Partitions)
	}
	if info.Location == "" {
		t.Errorf("Expected a location")
	}
}
