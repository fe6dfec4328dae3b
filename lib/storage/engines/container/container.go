package container

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/lni/dragonboat/v4/logger"
	_ "modernc.org/sqlite" // pure Go sqlite driver
)

var log = logger.GetLogger("storage/container")

const fileExt = ".kst"

// sidecar files SQLite may leave next to a container
var sidecars = []string{"", "-wal", "-shm", "-journal"}

// Options configures the container backend
type Options struct {
	BaseDir       string // directory holding one container file per product
	BusyTimeoutMS int    // how long SQLite waits for a lock (0 = 5000)
}

// DefaultOptions returns the default container options
func DefaultOptions() *Options {
	return &Options{
		BaseDir:       ".",
		BusyTimeoutMS: 5000,
	}
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

type backendImpl struct {
	baseDir       string
	busyTimeoutMS int
}

// NewBackend creates a structured container backend with the specified options (optional).
// Every product is a single SQLite file; each dataset is a catalog row plus the
// record chunks appended to it.
func NewBackend(opts *Options) storage.Backend {
	if opts == nil {
		opts = DefaultOptions()
	}
	timeout := opts.BusyTimeoutMS
	if timeout <= 0 {
		timeout = 5000
	}
	return &backendImpl{
		baseDir:       opts.BaseDir,
		busyTimeoutMS: timeout,
	}
}

func (b *backendImpl) Kind() storage.Kind {
	return storage.KindContainer
}

func (b *backendImpl) containerFile(name string) string {
	return filepath.Join(b.baseDir, name+fileExt)
}

func (b *backendImpl) OpenProduct(name string, deleteExisting bool) (storage.Namespace, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if deleteExisting {
		if err := b.RemoveProduct(name); err != nil {
			return nil, err
		}
	}

	path := b.containerFile(name)
	if stat, err := os.Stat(path); err == nil && stat.IsDir() {
		return nil, storage.NameConflict("%s exists and is a directory", path)
	}
	if err := os.MkdirAll(b.baseDir, 0o755); err != nil {
		return nil, storage.IOFailure(err, "create %s", b.baseDir)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)", path, b.busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.IOFailure(err, "open container %s", path)
	}
	// one connection serializes all statements of this product
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db, name); err != nil {
		_ = db.Close()
		if errors.Is(err, errNotContainer) {
			return nil, storage.NameConflict("%s: %v", path, err)
		}
		return nil, storage.IOFailure(err, "init container %s", path)
	}

	log.Debugf("opened container %s", path)
	return &namespaceImpl{
		backend:  b,
		name:     name,
		path:     path,
		db:       db,
		datasets: map[string]*datasetImpl{},
	}, nil
}

func (b *backendImpl) RemoveProduct(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	return removeFiles(b.containerFile(name))
}

func (b *backendImpl) Products() ([]string, error) {
	entries, err := os.ReadDir(b.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.IOFailure(err, "list %s", b.baseDir)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), fileExt) {
			names = append(names, strings.TrimSuffix(entry.Name(), fileExt))
		}
	}
	return names, nil
}

// removeFiles deletes a container and its sidecar files
func removeFiles(path string) error {
	var errs []error
	for _, suffix := range sidecars {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return storage.IOFailure(err, "remove container %s", path)
	}
	return nil
}

// --------------------------------------------------------------------------
// Namespace
// --------------------------------------------------------------------------

type namespaceImpl struct {
	backend  *backendImpl
	name     string
	path     string
	db       *sql.DB
	datasets map[string]*datasetImpl // open datasets by path
	removed  bool
	closed   bool
}

// datasetPath is the address of a dataset inside the container: /product[/partition]/name
func (ns *namespaceImpl) datasetPath(id storage.DatasetID) string {
	return "/" + ns.name + "/" + id.Path()
}

func (ns *namespaceImpl) usable() error {
	if ns.removed {
		return storage.ResourceGone("product %s was removed", ns.name)
	}
	if ns.closed {
		return storage.ResourceGone("product %s was closed", ns.name)
	}
	return nil
}

func (ns *namespaceImpl) Dataset(id storage.DatasetID, codec string, recordSize int) (storage.Dataset, error) {
	if err := ns.usable(); err != nil {
		return nil, err
	}
	if recordSize <= 0 {
		return nil, storage.InvalidArgument("record size must be positive, got %d", recordSize)
	}

	if id.IsMember() {
		n, ok, err := ns.PartitionArity(id.Partition)
		if err != nil {
			return nil, err
		}
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
		_, isPartition, err := ns.PartitionArity(id.Name)
		if err != nil {
			return nil, err
		}
		if isPartition {
			return nil, storage.NameConflict("%s is a partition of product %s", id.Name, ns.name)
		}
	}

	path := ns.datasetPath(id)
	var (
		dsID        int64
		storedCodec string
		storedSize  int
		count       uint64
	)
	err := ns.db.QueryRow(`SELECT id, codec, record_size, count FROM datasets WHERE path = ?`, path).
		Scan(&dsID, &storedCodec, &storedSize, &count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := ns.db.Exec(`INSERT INTO datasets(path, partition, idx, name, codec, record_size) VALUES (?, ?, ?, ?, ?, ?)`,
			path, id.Partition, id.Index, id.Name, codec, recordSize)
		if err != nil {
			return nil, storage.IOFailure(err, "create dataset %s", id)
		}
		if dsID, err = res.LastInsertId(); err != nil {
			return nil, storage.IOFailure(err, "create dataset %s", id)
		}
	case err != nil:
		return nil, storage.IOFailure(err, "lookup dataset %s", id)
	case storedCodec != codec || storedSize != recordSize:
		return nil, storage.NameConflict("dataset %s holds %s records of %d bytes, not %s of %d bytes",
			id, storedCodec, storedSize, codec, recordSize)
	}

	if ds, ok := ns.datasets[path]; ok {
		return ds, nil
	}

	// chunks beyond the synced count were appended but never made durable
	res, err := ns.db.Exec(`DELETE FROM chunks WHERE dataset_id = ? AND first >= ?`, dsID, count)
	if err != nil {
		return nil, storage.IOFailure(err, "recover dataset %s", id)
	}
	if dropped, _ := res.RowsAffected(); dropped > 0 {
		log.Warningf("dataset %s of product %s: dropped %d chunks that were never synced", id, ns.name, dropped)
	}

	ds := &datasetImpl{
		ns:         ns,
		id:         id,
		dbID:       dsID,
		recordSize: recordSize,
		durable:    count,
		tail:       count,
	}
	ns.datasets[path] = ds
	return ds, nil
}

func (ns *namespaceImpl) PartitionArity(name string) (int, bool, error) {
	if err := ns.usable(); err != nil {
		return 0, false, err
	}
	var n int
	err := ns.db.QueryRow(`SELECT arity FROM partitions WHERE name = ?`, name).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storage.IOFailure(err, "lookup partition %s", name)
	}
	return n, true, nil
}

func (ns *namespaceImpl) CreatePartition(name string, n int) error {
	if err := validName(name); err != nil {
		return err
	}
	if n < 1 {
		return storage.InvalidArgument("partition %s: member count must be at least 1, got %d", name, n)
	}
	existing, ok, err := ns.PartitionArity(name)
	if err != nil {
		return err
	}
	if ok {
		if existing != n {
			return storage.ArityMismatch(name, existing, n)
		}
		return nil
	}

	var collections int
	if err := ns.db.QueryRow(`SELECT COUNT(*) FROM datasets WHERE path = ?`, ns.datasetPath(storage.CollectionID(name))).
		Scan(&collections); err != nil {
		return storage.IOFailure(err, "lookup collection %s", name)
	}
	if collections > 0 {
		return storage.NameConflict("%s is a collection of product %s", name, ns.name)
	}

	if _, err := ns.db.Exec(`INSERT INTO partitions(name, arity) VALUES (?, ?)`, name, n); err != nil {
		return storage.IOFailure(err, "create partition %s", name)
	}
	return nil
}

func (ns *namespaceImpl) Datasets() ([]storage.DatasetInfo, error) {
	if err := ns.usable(); err != nil {
		return nil, err
	}
	rows, err := ns.db.Query(`SELECT partition, idx, name, codec, record_size, count FROM datasets ORDER BY path`)
	if err != nil {
		return nil, storage.IOFailure(err, "list datasets")
	}
	defer rows.Close()

	var infos []storage.DatasetInfo
	for rows.Next() {
		var (
			partition, name string
			idx             int
			info            storage.DatasetInfo
		)
		if err := rows.Scan(&partition, &idx, &name, &info.Codec, &info.RecordSize, &info.Count); err != nil {
			return nil, storage.IOFailure(err, "list datasets")
		}
		if partition != "" {
			info.ID = storage.MemberID(partition, idx)
		} else {
			info.ID = storage.CollectionID(name)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.IOFailure(err, "list datasets")
	}
	return infos, nil
}

func (ns *namespaceImpl) Info() storage.Info {
	var size int64
	for _, suffix := range sidecars {
		if stat, err := os.Stat(ns.path + suffix); err == nil {
			size += stat.Size()
		}
	}

	partitions := map[string]int{}
	meta := &struct {
		Datasets int    `json:"datasets"`
		Chunks   int    `json:"chunks"`
		Version  string `json:"version"`
		Removed  bool   `json:"removed"`
	}{
		Version: containerVersion,
		Removed: ns.removed,
	}

	if ns.usable() == nil {
		_ = ns.db.QueryRow(`SELECT COUNT(*) FROM datasets`).Scan(&meta.Datasets)
		_ = ns.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&meta.Chunks)
		if rows, err := ns.db.Query(`SELECT name, arity FROM partitions`); err == nil {
			for rows.Next() {
				var (
					name string
					n    int
				)
				if rows.Scan(&name, &n) == nil {
					partitions[name] = n
				}
			}
			_ = rows.Close()
		}
	}

	return storage.Info{
		Kind:       storage.KindContainer,
		Product:    ns.name,
		Location:   ns.path,
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
	if err := removeFiles(ns.path); err != nil {
		return err
	}
	ns.removed = true
	log.Debugf("removed container %s", ns.path)
	return nil
}

func (ns *namespaceImpl) Close() error {
	if ns.closed {
		return nil
	}
	ns.closed = true
	ns.datasets = map[string]*datasetImpl{}
	if err := ns.db.Close(); err != nil {
		return storage.IOFailure(err, "close container %s", ns.path)
	}
	return nil
}

// --------------------------------------------------------------------------
// Dataset
// --------------------------------------------------------------------------

type datasetImpl struct {
	ns         *namespaceImpl
	id         storage.DatasetID
	dbID       int64
	recordSize int
	durable    uint64 // records made durable by Sync
	tail       uint64 // records appended, durable or not
	removed    bool
}

func (ds *datasetImpl) usable() error {
	if ds.removed {
		return storage.ResourceGone("dataset %s was removed", ds.id)
	}
	return ds.ns.usable()
}

func (ds *datasetImpl) Append(records []byte) error {
	if err := ds.usable(); err != nil {
		return err
	}
	if len(records)%ds.recordSize != 0 {
		return storage.InvalidArgument("dataset %s: %d bytes are not a whole number of %d byte records", ds.id, len(records), ds.recordSize)
	}
	n := uint64(len(records) / ds.recordSize)
	if n == 0 {
		return nil
	}

	// a chunk is one row, so a failed insert leaves nothing behind
	if _, err := ds.ns.db.Exec(`INSERT INTO chunks(dataset_id, first, count, payload) VALUES (?, ?, ?, ?)`,
		ds.dbID, ds.tail, n, records); err != nil {
		return storage.IOFailure(err, "append to dataset %s", ds.id)
	}
	ds.tail += n
	return nil
}

func (ds *datasetImpl) Sync() error {
	if err := ds.usable(); err != nil {
		return err
	}
	if ds.tail == ds.durable {
		return nil
	}
	if _, err := ds.ns.db.Exec(`UPDATE datasets SET count = ? WHERE id = ?`, ds.tail, ds.dbID); err != nil {
		return storage.IOFailure(err, "sync dataset %s", ds.id)
	}
	ds.durable = ds.tail
	return nil
}

func (ds *datasetImpl) Count() uint64 {
	return ds.durable
}

func (ds *datasetImpl) ReadAt(dst []byte, first uint64) (int, error) {
	if err := ds.usable(); err != nil {
		return 0, err
	}
	want := uint64(len(dst) / ds.recordSize)
	if first >= ds.durable || want == 0 {
		return 0, nil
	}
	if left := ds.durable - first; want > left {
		want = left
	}
	end := first + want

	rows, err := ds.ns.db.Query(`SELECT first, count, payload FROM chunks
		WHERE dataset_id = ? AND first < ? AND first + count > ? ORDER BY first`, ds.dbID, end, first)
	if err != nil {
		return 0, storage.IOFailure(err, "read dataset %s", ds.id)
	}
	defer rows.Close()

	rs := uint64(ds.recordSize)
	pos := first
	for rows.Next() && pos < end {
		var (
			chunkFirst, chunkCount uint64
			payload                []byte
		)
		if err := rows.Scan(&chunkFirst, &chunkCount, &payload); err != nil {
			return 0, storage.IOFailure(err, "read dataset %s", ds.id)
		}
		if chunkFirst > pos || uint64(len(payload)) != chunkCount*rs {
			return 0, storage.IOFailure(errors.New("chunk layout"), "dataset %s corrupt at record %d", ds.id, pos)
		}
		from := pos - chunkFirst
		to := min(chunkCount, end-chunkFirst)
		copy(dst[(pos-first)*rs:], payload[from*rs:to*rs])
		pos = chunkFirst + to
	}
	if err := rows.Err(); err != nil {
		return 0, storage.IOFailure(err, "read dataset %s", ds.id)
	}
	if pos != end {
		return 0, storage.IOFailure(errors.New("missing chunks"), "dataset %s corrupt at record %d", ds.id, pos)
	}
	return int(want), nil
}

func (ds *datasetImpl) Remove() error {
	if ds.removed || ds.ns.removed {
		return nil
	}
	if err := ds.ns.usable(); err != nil {
		return err
	}

	tx, err := ds.ns.db.Begin()
	if err != nil {
		return storage.IOFailure(err, "remove dataset %s", ds.id)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE dataset_id = ?`, ds.dbID); err != nil {
		return storage.IOFailure(err, "remove dataset %s", ds.id)
	}
	if _, err := tx.Exec(`DELETE FROM datasets WHERE id = ?`, ds.dbID); err != nil {
		return storage.IOFailure(err, "remove dataset %s", ds.id)
	}
	if err := tx.Commit(); err != nil {
		return storage.IOFailure(err, "remove dataset %s", ds.id)
	}

	ds.removed = true
	delete(ds.ns.datasets, ds.ns.datasetPath(ds.id))
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// validName rejects names that cannot be used as a container file name or path element
func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return storage.NameConflict("invalid name %q", name)
	}
	return nil
}
