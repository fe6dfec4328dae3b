package collections

import (
	"errors"
	"sync"
	"testing"

	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/ValentinKolb/kstore/lib/storage/engines"
	"github.com/stretchr/testify/require"
)

// forEachKind runs fn once per backend kind with options rooted in a fresh directory
func forEachKind(t *testing.T, fn func(t *testing.T, kind storage.Kind, opts *Options)) {
	for _, kind := range engines.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			opts := DefaultOptions()
			opts.BaseDir = t.TempDir()
			fn(t, kind, opts)
		})
	}
}

func openProduct(t *testing.T, name string, kind storage.Kind, opts *Options) *Product {
	t.Helper()
	p, err := OpenOrCreate(name, kind, false, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}

// --------------------------------------------------------------------------
// Fault injection
// --------------------------------------------------------------------------

var errDiskFull = errors.New("no space left on device")

// faults decides which dataset operations fail, by dataset path
type faults struct {
	mu     sync.Mutex
	append map[string]bool
	sync   map[string]bool
}

func newFaults() *faults {
	return &faults{append: map[string]bool{}, sync: map[string]bool{}}
}

func (f *faults) failAppend(path string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.append[path] = fail
}

func (f *faults) failSync(path string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sync[path] = fail
}

func (f *faults) check(ops map[string]bool, id storage.DatasetID, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ops[id.Path()] {
		return storage.IOFailure(errDiskFull, "%s %s", op, id)
	}
	return nil
}

// faultyBackend wraps a real backend and fails dataset operations on demand
type faultyBackend struct {
	storage.Backend
	f *faults
}

func (b *faultyBackend) OpenProduct(name string, deleteExisting bool) (storage.Namespace, error) {
	ns, err := b.Backend.OpenProduct(name, deleteExisting)
	if err != nil {
		return nil, err
	}
	return &faultyNamespace{Namespace: ns, f: b.f}, nil
}

type faultyNamespace struct {
	storage.Namespace
	f *faults
}

func (ns *faultyNamespace) Dataset(id storage.DatasetID, codec string, recordSize int) (storage.Dataset, error) {
	ds, err := ns.Namespace.Dataset(id, codec, recordSize)
	if err != nil {
		return nil, err
	}
	return &faultyDataset{Dataset: ds, id: id, f: ns.f}, nil
}

type faultyDataset struct {
	storage.Dataset
	id storage.DatasetID
	f  *faults
}

func (ds *faultyDataset) Append(records []byte) error {
	if err := ds.f.check(ds.f.append, ds.id, "append"); err != nil {
		return err
	}
	return ds.Dataset.Append(records)
}

func (ds *faultyDataset) Sync() error {
	if err := ds.f.check(ds.f.sync, ds.id, "sync"); err != nil {
		return err
	}
	return ds.Dataset.Sync()
}

// openFaultyProduct opens a product whose datasets fail as configured in the returned faults
func openFaultyProduct(t *testing.T, kind storage.Kind, opts *Options) (*Product, *faults) {
	t.Helper()
	backend, err := engines.NewBackend(kind, opts.BaseDir)
	require.NoError(t, err)

	f := newFaults()
	o := *opts
	o.Backend = &faultyBackend{Backend: backend, f: f}
	return openProduct(t, "faulty", kind, &o), f
}
