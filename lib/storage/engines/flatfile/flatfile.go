package flatfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/afero"
)

var log = logger.GetLogger("storage/file")

const (
	fileExt       = ".col"
	osCreateTrunc = os.O_RDWR | os.O_CREATE | os.O_TRUNC
)

// Options configures the flat file backend
type Options struct {
	BaseDir string   // directory holding one sub directory per product
	Fs      afero.Fs // filesystem to use (nil = operating system)
}

// DefaultOptions returns the default flat file options
func DefaultOptions() *Options {
	return &Options{
		BaseDir: ".",
		Fs:      afero.NewOsFs(),
	}
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

type backendImpl struct {
	fs      afero.Fs
	baseDir string
}

// NewBackend creates a flat file backend with the specified options (optional).
// Every product is a directory below BaseDir, every dataset one file holding
// its records back to back.
func NewBackend(opts *Options) storage.Backend {
	if opts == nil {
		opts = DefaultOptions()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &backendImpl{
		fs:      fs,
		baseDir: opts.BaseDir,
	}
}

func (b *backendImpl) Kind() storage.Kind {
	return storage.KindFile
}

func (b *backendImpl) productDir(name string) string {
	return filepath.Join(b.baseDir, name)
}

func (b *backendImpl) OpenProduct(name string, deleteExisting bool) (storage.Namespace, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	dir := b.productDir(name)
	if deleteExisting {
		if err := b.RemoveProduct(name); err != nil {
			return nil, err
		}
	}

	// the name must either be free, an empty directory or one of our products
	stat, err := b.fs.Stat(dir)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, storage.IOFailure(err, "stat product %s", name)
	}
	if exists && !stat.IsDir() {
		return nil, storage.NameConflict("%s exists and is not a directory", dir)
	}

	ns := &namespaceImpl{
		fs:       b.fs,
		name:     name,
		dir:      dir,
		datasets: map[string]*datasetImpl{},
	}

	hasManifest, err := afero.Exists(b.fs, filepath.Join(dir, manifestName))
	if err != nil {
		return nil, storage.IOFailure(err, "stat manifest of %s", name)
	}

	switch {
	case hasManifest:
		m, err := loadManifest(b.fs, dir)
		if err != nil {
			return nil, storage.NameConflict("%s is not a readable flat file product: %v", dir, err)
		}
		ns.manifest = m
		log.Debugf("reopened product %s (%d datasets)", name, len(m.Datasets))
	case exists:
		empty, err := afero.IsEmpty(b.fs, dir)
		if err != nil {
			return nil, storage.IOFailure(err, "list %s", dir)
		}
		if !empty {
			return nil, storage.NameConflict("%s is a non empty directory without product manifest", dir)
		}
		fallthrough
	default:
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, storage.IOFailure(err, "create product %s", name)
		}
		ns.manifest = newManifest(name)
		if err := ns.manifest.persist(b.fs, dir); err != nil {
			return nil, storage.IOFailure(err, "write manifest of %s", name)
		}
		log.Debugf("created product %s in %s", name, dir)
	}

	return ns, nil
}

func (b *backendImpl) RemoveProduct(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := b.fs.RemoveAll(b.productDir(name)); err != nil {
		return storage.IOFailure(err, "remove product %s", name)
	}
	return nil
}

func (b *backendImpl) Products() ([]string, error) {
	entries, err := afero.ReadDir(b.fs, b.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.IOFailure(err, "list %s", b.baseDir)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// directories without manifest are not ours
		if ok, _ := afero.Exists(b.fs, filepath.Join(b.baseDir, entry.Name(), manifestName)); ok {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// --------------------------------------------------------------------------
// Namespace
// --------------------------------------------------------------------------

type namespaceImpl struct {
	fs       afero.Fs
	name     string
	dir      string
	manifest manifest
	datasets map[string]*datasetImpl // open datasets by path
	removed  bool
}

func (ns *namespaceImpl) datasetFile(id storage.DatasetID) string {
	if id.IsMember() {
		return filepath.Join(ns.dir, id.Partition, fmt.Sprintf("%s-%03d%s", id.Partition, id.Index, fileExt))
	}
	return filepath.Join(ns.dir, id.Name+fileExt)
}

func (ns *namespaceImpl) Dataset(id storage.DatasetID, codec string, recordSize int) (storage.Dataset, error) {
	if ns.removed {
		return nil, storage.ResourceGone("product %s was removed", ns.name)
	}
	if recordSize <= 0 {
		return nil, storage.InvalidArgument("record size must be positive, got %d", recordSize)
	}

	key := id.Path()
	if id.IsMember() {
		n, ok := ns.manifest.Partitions[id.Partition]
		if !ok {
			return nil, storage.NameConflict("partition %s does not exist in product %s", id.Partition, ns.name)
		}
		if id.Index < 0 || id.Index >= n {
			return nil, storage.IndexOutOfBounds(id.Index, n)
		}
	} else {
		if err := validName(id.Name); err != nil {
			return nil, err
		}
		if _, ok := ns.manifest.Partitions[id.Name]; ok {
			return nil, storage.NameConflict("%s is a partition of product %s", id.Name, ns.name)
		}
	}

	entry, known := ns.manifest.Datasets[key]
	if known && (entry.Codec != codec || entry.RecordSize != recordSize) {
		return nil, storage.NameConflict("dataset %s holds %s records of %d bytes, not %s of %d bytes",
			id, entry.Codec, entry.RecordSize, codec, recordSize)
	}
	if ds, ok := ns.datasets[key]; ok {
		return ds, nil
	}

	ds, err := openDataset(ns, id, ns.datasetFile(id), recordSize)
	if err != nil {
		return nil, err
	}

	if !known {
		ns.manifest.Datasets[key] = datasetEntry{
			Partition:  id.Partition,
			Index:      id.Index,
			Name:       id.Name,
			Codec:      codec,
			RecordSize: recordSize,
		}
		if err := ns.manifest.persist(ns.fs, ns.dir); err != nil {
			_ = ds.f.Close()
			delete(ns.manifest.Datasets, key)
			return nil, storage.IOFailure(err, "write manifest of %s", ns.name)
		}
	}

	ns.datasets[key] = ds
	return ds, nil
}

func (ns *namespaceImpl) PartitionArity(name string) (int, bool, error) {
	if ns.removed {
		return 0, false, storage.ResourceGone("product %s was removed", ns.name)
	}
	n, ok := ns.manifest.Partitions[name]
	return n, ok, nil
}

func (ns *namespaceImpl) CreatePartition(name string, n int) error {
	if ns.removed {
		return storage.ResourceGone("product %s was removed", ns.name)
	}
	if err := validName(name); err != nil {
		return err
	}
	if n < 1 {
		return storage.InvalidArgument("partition %s: member count must be at least 1, got %d", name, n)
	}
	if existing, ok := ns.manifest.Partitions[name]; ok {
		if existing != n {
			return storage.ArityMismatch(name, existing, n)
		}
		return nil
	}
	if _, ok := ns.manifest.Datasets[name]; ok {
		return storage.NameConflict("%s is a collection of product %s", name, ns.name)
	}

	if err := ns.fs.MkdirAll(filepath.Join(ns.dir, name), 0o755); err != nil {
		return storage.IOFailure(err, "create partition %s", name)
	}
	ns.manifest.Partitions[name] = n
	if err := ns.manifest.persist(ns.fs, ns.dir); err != nil {
		delete(ns.manifest.Partitions, name)
		return storage.IOFailure(err, "write manifest of %s", ns.name)
	}
	return nil
}

func (ns *namespaceImpl) Datasets() ([]storage.DatasetInfo, error) {
	if ns.removed {
		return nil, storage.ResourceGone("product %s was removed", ns.name)
	}

	infos := make([]storage.DatasetInfo, 0, len(ns.manifest.Datasets))
	for key, entry := range ns.manifest.Datasets {
		info := storage.DatasetInfo{
			ID:         entry.id(),
			Codec:      entry.Codec,
			RecordSize: entry.RecordSize,
		}
		if ds, ok := ns.datasets[key]; ok {
			info.Count = ds.Count()
		} else {
			stat, err := ns.fs.Stat(ns.datasetFile(info.ID))
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, storage.IOFailure(err, "stat dataset %s", info.ID)
			}
			if err == nil {
				info.Count = uint64(stat.Size()) / uint64(entry.RecordSize)
			}
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID.Path() < infos[j].ID.Path()
	})
	return infos, nil
}

func (ns *namespaceImpl) Info() storage.Info {
	var (
		size  int64
		files int
	)
	_ = afero.Walk(ns.fs, ns.dir, func(_ string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		size += fi.Size()
		files++
		return nil
	})

	partitions := make(map[string]int, len(ns.manifest.Partitions))
	for name, n := range ns.manifest.Partitions {
		partitions[name] = n
	}

	meta := &struct {
		Files           int    `json:"files"`
		ManifestVersion int    `json:"manifest_version"`
		CreatedAt       string `json:"created_at"`
		Removed         bool   `json:"removed"`
	}{
		Files:           files,
		ManifestVersion: ns.manifest.Version,
		CreatedAt:       ns.manifest.CreatedAt.String(),
		Removed:         ns.removed,
	}

	return storage.Info{
		Kind:       storage.KindFile,
		Product:    ns.name,
		Location:   ns.dir,
		SizeBytes:  size,
		Partitions: partitions,
		Metadata:   meta,
	}
}

func (ns *namespaceImpl) Remove() error {
	if ns.removed {
		return nil
	}
	_ = ns.Close()
	if err := ns.fs.RemoveAll(ns.dir); err != nil {
		return storage.IOFailure(err, "remove product %s", ns.name)
	}
	ns.removed = true
	log.Debugf("removed product %s", ns.name)
	return nil
}

func (ns *namespaceImpl) Close() error {
	var errs []error
	for key, ds := range ns.datasets {
		if err := ds.close(); err != nil {
			errs = append(errs, err)
		}
		delete(ns.datasets, key)
	}
	if err := errors.Join(errs...); err != nil {
		return storage.IOFailure(err, "close product %s", ns.name)
	}
	return nil
}

// forget drops a removed dataset from the catalog
func (ns *namespaceImpl) forget(id storage.DatasetID) error {
	key := id.Path()
	delete(ns.datasets, key)
	if _, ok := ns.manifest.Datasets[key]; !ok {
		return nil
	}
	delete(ns.manifest.Datasets, key)
	return ns.manifest.persist(ns.fs, ns.dir)
}

// --------------------------------------------------------------------------
// Dataset
// --------------------------------------------------------------------------

type datasetImpl struct {
	ns         *namespaceImpl
	id         storage.DatasetID
	path       string
	f          afero.File
	recordSize int
	durable    uint64 // records made durable by Sync
	tail       int64  // bytes written, durable or not
	removed    bool
}

// openDataset opens the file of a dataset and drops a partial record at its end
func openDataset(ns *namespaceImpl, id storage.DatasetID, path string, recordSize int) (*datasetImpl, error) {
	f, err := ns.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, storage.IOFailure(err, "open dataset %s", id)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, storage.IOFailure(err, "stat dataset %s", id)
	}

	size := stat.Size()
	if rem := size % int64(recordSize); rem != 0 {
		log.Warningf("dataset %s of product %s ends with a partial record (%d bytes), truncating", id, ns.name, rem)
		size -= rem
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, storage.IOFailure(err, "truncate dataset %s", id)
		}
	}

	return &datasetImpl{
		ns:         ns,
		id:         id,
		path:       path,
		f:          f,
		recordSize: recordSize,
		durable:    uint64(size) / uint64(recordSize),
		tail:       size,
	}, nil
}

func (ds *datasetImpl) Append(records []byte) error {
	if ds.removed || ds.ns.removed {
		return storage.ResourceGone("dataset %s was removed", ds.id)
	}
	if len(records)%ds.recordSize != 0 {
		return storage.InvalidArgument("dataset %s: %d bytes are not a whole number of %d byte records", ds.id, len(records), ds.recordSize)
	}
	if len(records) == 0 {
		return nil
	}

	if _, err := ds.f.WriteAt(records, ds.tail); err != nil {
		// drop whatever part of the batch reached the file
		if terr := ds.f.Truncate(ds.tail); terr != nil {
			log.Errorf("dataset %s: truncate after failed append: %v", ds.id, terr)
		}
		return storage.IOFailure(err, "append to dataset %s", ds.id)
	}
	ds.tail += int64(len(records))
	return nil
}

func (ds *datasetImpl) Sync() error {
	if ds.removed || ds.ns.removed {
		return storage.ResourceGone("dataset %s was removed", ds.id)
	}
	if err := ds.f.Sync(); err != nil {
		return storage.IOFailure(err, "sync dataset %s", ds.id)
	}
	ds.durable = uint64(ds.tail) / uint64(ds.recordSize)
	return nil
}

func (ds *datasetImpl) Count() uint64 {
	return ds.durable
}

func (ds *datasetImpl) ReadAt(dst []byte, first uint64) (int, error) {
	if ds.removed || ds.ns.removed {
		return 0, storage.ResourceGone("dataset %s was removed", ds.id)
	}
	if first >= ds.durable {
		return 0, nil
	}

	n := uint64(len(dst) / ds.recordSize)
	if left := ds.durable - first; n > left {
		n = left
	}
	if n == 0 {
		return 0, nil
	}

	buf := dst[:n*uint64(ds.recordSize)]
	read, err := ds.f.ReadAt(buf, int64(first)*int64(ds.recordSize))
	if err != nil && !(errors.Is(err, io.EOF) && read == len(buf)) {
		return 0, storage.IOFailure(err, "read dataset %s", ds.id)
	}
	return int(n), nil
}

func (ds *datasetImpl) Remove() error {
	if ds.removed || ds.ns.removed {
		return nil
	}
	_ = ds.f.Close()
	if err := ds.ns.fs.Remove(ds.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return storage.IOFailure(err, "remove dataset %s", ds.id)
	}
	ds.removed = true
	if err := ds.ns.forget(ds.id); err != nil {
		return storage.IOFailure(err, "write manifest of %s", ds.ns.name)
	}
	return nil
}

func (ds *datasetImpl) close() error {
	if ds.removed {
		return nil
	}
	ds.removed = true
	return ds.f.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// validName rejects names that would escape or clash inside a product directory
func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return storage.NameConflict("invalid name %q", name)
	}
	return nil
}
