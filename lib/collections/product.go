package collections

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/kstore/lib/codec"
	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/ValentinKolb/kstore/lib/storage/engines"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("collections")

// DefaultPendingLimit is the number of encoded bytes a collection buffers
// before handing them to its dataset
const DefaultPendingLimit = 1 << 20

// Options configures a product
type Options struct {
	BaseDir      string          // directory the backend stores products in
	PendingLimit int             // bytes buffered per collection before they go to the backend (0 = default)
	AutoRemove   bool            // Close removes the product
	Backend      storage.Backend // use this backend instead of creating one from kind and BaseDir
}

// DefaultOptions returns the default product options
func DefaultOptions() *Options {
	return &Options{
		BaseDir:      ".",
		PendingLimit: DefaultPendingLimit,
	}
}

// Product is a named logical database bound to one storage backend. It creates
// and owns the collections and partitions of its namespace.
//
// Thread-safety: obtaining collections and partitions is safe for concurrent
// use. Remove and Close must not run concurrently with operations on the
// collections of the product.
type Product struct {
	name    string
	kind    storage.Kind
	opts    Options
	backend storage.Backend
	ns      storage.Namespace

	mu      sync.Mutex // serializes structural changes of ns
	entries *xsync.MapOf[string, entry]
	removed atomic.Bool
	closed  atomic.Bool
}

// entry is a registered collection or partition
type entry struct {
	codec     string
	partition bool
	handle    any
}

// OpenOrCreate opens the named product, creating it if it does not exist.
// With deleteExisting, existing storage of that name is wiped first.
// opts is optional.
func OpenOrCreate(name string, kind storage.Kind, deleteExisting bool, opts *Options) (*Product, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.PendingLimit <= 0 {
		o.PendingLimit = DefaultPendingLimit
	}

	backend := o.Backend
	if backend == nil {
		var err error
		if backend, err = engines.NewBackend(kind, o.BaseDir); err != nil {
			return nil, err
		}
	}

	ns, err := backend.OpenProduct(name, deleteExisting)
	if err != nil {
		return nil, err
	}

	log.Infof("opened product %s (backend %s)", name, backend.Kind())
	return &Product{
		name:    name,
		kind:    backend.Kind(),
		opts:    o,
		backend: backend,
		ns:      ns,
		entries: xsync.NewMapOf[string, entry](),
	}, nil
}

// Name returns the name of the product
func (p *Product) Name() string {
	return p.name
}

// Kind returns the kind of the backend the product is stored in
func (p *Product) Kind() storage.Kind {
	return p.kind
}

func (p *Product) usable() error {
	if p.removed.Load() {
		return storage.ResourceGone("product %s was removed", p.name)
	}
	if p.closed.Load() {
		return storage.ResourceGone("product %s was closed", p.name)
	}
	return nil
}

// Info describes the physical storage of the product
func (p *Product) Info() storage.Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ns.Info()
}

// Datasets lists all datasets stored in the product, including those of
// collections that were not opened by this instance
func (p *Product) Datasets() ([]storage.DatasetInfo, error) {
	if err := p.usable(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ns.Datasets()
}

// Remove deletes all physical storage of the product. Every collection and
// partition obtained from it fails with ResourceGone afterward.
// Removing twice is not an error.
func (p *Product) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.removed.Load() {
		return nil
	}
	if err := p.ns.Remove(); err != nil {
		return err
	}
	p.removed.Store(true)
	p.entries.Clear()
	log.Infof("removed product %s", p.name)
	return nil
}

// Close releases all handles of the product without flushing. Records that
// were inserted but not flushed are lost; they are reported in the log.
// With AutoRemove the product is removed instead.
func (p *Product) Close() error {
	if p.opts.AutoRemove {
		return p.Remove()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.removed.Load() || p.closed.Load() {
		return nil
	}

	lost := 0
	p.entries.Range(func(name string, e entry) bool {
		if pr, ok := e.handle.(interface{ pendingRecords() int }); ok {
			lost += pr.pendingRecords()
		}
		return true
	})
	if lost > 0 {
		log.Warningf("closing product %s drops %d records that were never flushed", p.name, lost)
	}

	p.closed.Store(true)
	p.entries.Clear()
	return p.ns.Close()
}

// --------------------------------------------------------------------------
// Namespace access
// --------------------------------------------------------------------------

// GetCollection opens or creates the named collection of the product.
// Repeated calls with the same name and codec return the same handle.
// A name used by a partition or with another codec fails with NameConflict.
func GetCollection[T comparable](p *Product, name string, c codec.Codec[T]) (Collection[T], error) {
	if err := p.usable(); err != nil {
		return nil, err
	}
	if e, ok := p.entries.Load(name); ok {
		return registeredCollection[T](p, name, c, e)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.usable(); err != nil {
		return nil, err
	}
	if e, ok := p.entries.Load(name); ok {
		return registeredCollection[T](p, name, c, e)
	}

	id := storage.CollectionID(name)
	ds, err := p.ns.Dataset(id, c.Name(), c.Size())
	if err != nil {
		return nil, err
	}
	col := newCollection(p, id, c, ds)
	p.entries.Store(name, entry{codec: c.Name(), handle: col})
	log.Debugf("opened collection %s of product %s (%d records)", name, p.name, ds.Count())
	return col, nil
}

func registeredCollection[T comparable](p *Product, name string, c codec.Codec[T], e entry) (Collection[T], error) {
	if e.partition {
		return nil, storage.NameConflict("%s is a partition of product %s", name, p.name)
	}
	col, ok := e.handle.(*collectionImpl[T])
	if !ok || e.codec != c.Name() {
		return nil, storage.NameConflict("collection %s of product %s holds %s records, not %s", name, p.name, e.codec, c.Name())
	}
	return col, nil
}

// GetPartition opens or creates the named partition with n members.
// An existing partition with another member count fails with PartitionArityMismatch.
func GetPartition[T comparable](p *Product, name string, n int, c codec.Codec[T]) (*Partition[T], error) {
	if n < 1 {
		return nil, storage.InvalidArgument("partition %s: member count must be at least 1, got %d", name, n)
	}
	if err := p.usable(); err != nil {
		return nil, err
	}
	if e, ok := p.entries.Load(name); ok {
		return registeredPartition[T](p, name, n, c, e)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.usable(); err != nil {
		return nil, err
	}
	if e, ok := p.entries.Load(name); ok {
		return registeredPartition[T](p, name, n, c, e)
	}

	if err := p.ns.CreatePartition(name, n); err != nil {
		return nil, err
	}
	members := make([]*collectionImpl[T], n)
	for i := range members {
		id := storage.MemberID(name, i)
		ds, err := p.ns.Dataset(id, c.Name(), c.Size())
		if err != nil {
			return nil, err
		}
		members[i] = newCollection(p, id, c, ds)
	}

	part := &Partition[T]{
		name:    name,
		codec:   c.Name(),
		members: members,
	}
	p.entries.Store(name, entry{codec: c.Name(), partition: true, handle: part})
	log.Debugf("opened partition %s of product %s (%d members)", name, p.name, n)
	return part, nil
}

func registeredPartition[T comparable](p *Product, name string, n int, c codec.Codec[T], e entry) (*Partition[T], error) {
	if !e.partition {
		return nil, storage.NameConflict("%s is a collection of product %s", name, p.name)
	}
	part, ok := e.handle.(*Partition[T])
	if !ok || e.codec != c.Name() {
		return nil, storage.NameConflict("partition %s of product %s holds %s records, not %s", name, p.name, e.codec, c.Name())
	}
	if part.Size() != n {
		return nil, storage.ArityMismatch(name, part.Size(), n)
	}
	return part, nil
}
