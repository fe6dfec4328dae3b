package storage

import (
	"fmt"
	"path"
	"strconv"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Kind identifies a storage backend implementation
type Kind string

const (
	KindFile      Kind = "file"      // one flat file per collection
	KindContainer Kind = "container" // one structured container file per product
)

// DatasetID addresses a dataset inside a product namespace.
// A plain collection only sets Name, a partition member sets Partition and Index.
type DatasetID struct {
	Partition string
	Index     int
	Name      string
}

// CollectionID returns the id of a plain collection
func CollectionID(name string) DatasetID {
	return DatasetID{Name: name}
}

// MemberID returns the id of the i-th member of a partition
func MemberID(partition string, i int) DatasetID {
	return DatasetID{Partition: partition, Index: i, Name: strconv.Itoa(i)}
}

// IsMember reports whether the id belongs to a partition
func (id DatasetID) IsMember() bool {
	return id.Partition != ""
}

// Path returns the dataset path relative to its product, e.g. "solid" or "parts/3"
func (id DatasetID) Path() string {
	if id.IsMember() {
		return path.Join(id.Partition, strconv.Itoa(id.Index))
	}
	return id.Name
}

func (id DatasetID) String() string {
	if id.IsMember() {
		return fmt.Sprintf("%s[%d]", id.Partition, id.Index)
	}
	return id.Name
}

// DatasetInfo describes a dataset stored in a namespace
type DatasetInfo struct {
	ID         DatasetID `json:"id" yaml:"id"`
	Codec      string    `json:"codec" yaml:"codec"`
	RecordSize int       `json:"record_size" yaml:"record_size"`
	Count      uint64    `json:"count" yaml:"count"`
}

// Info describes the physical resource of a product
type Info struct {
	Kind       Kind           `json:"kind"`
	Product    string         `json:"product"`
	Location   string         `json:"location"`
	SizeBytes  int64          `json:"size_bytes"`
	Partitions map[string]int `json:"partitions"`
	Metadata   interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Backend Interfaces
// --------------------------------------------------------------------------

// Backend is a pluggable persistence provider. It is stateless apart from its
// configuration and yields the physical resource of a product by name.
// Implementations only ever handle encoded byte spans of fixed-size records.
type Backend interface {

	// Kind returns the backend kind.
	Kind() (kind Kind)

	// OpenProduct opens the namespace of the named product, creating it if needed.
	// If deleteExisting is set, existing storage of that name is wiped first.
	// NameConflict is returned if something that is not a product of this backend
	// already occupies the name.
	OpenProduct(name string, deleteExisting bool) (ns Namespace, err error)

	// RemoveProduct deletes all storage of the named product.
	// Removing a product that does not exist is not an error.
	RemoveProduct(name string) (err error)

	// Products lists the names of all products stored by the backend, sorted.
	Products() (names []string, err error)
}

// Namespace is the physical resource a product wraps: a directory, a container file, ...
// A namespace is not safe for concurrent structural changes (Dataset, CreatePartition, Remove).
type Namespace interface {

	// Dataset opens or creates the dataset with the given id.
	// Reopening an existing dataset with another codec or record size fails with NameConflict.
	Dataset(id DatasetID, codec string, recordSize int) (ds Dataset, err error)

	// PartitionArity returns the number of members of the named partition, if it exists.
	PartitionArity(name string) (n int, found bool, err error)

	// CreatePartition records a partition with n members.
	CreatePartition(name string, n int) (err error)

	// Datasets lists all datasets of the namespace.
	Datasets() (infos []DatasetInfo, err error)

	// Info returns information about the physical resource.
	// It is not guaranteed that all fields are filled in.
	Info() (info Info)

	// Remove deletes all physical storage of the namespace. Idempotent.
	// Every dataset obtained from the namespace is unusable afterward.
	Remove() (err error)

	// Close releases open handles without deleting anything.
	Close() (err error)
}

// Dataset is the physical sub-resource of a collection: an append-only
// sequence of fixed-size records.
// A dataset is not safe for concurrent use.
type Dataset interface {

	// Append writes whole encoded records after the existing ones.
	// Appended records are neither durable nor counted before Sync.
	Append(records []byte) (err error)

	// Sync makes all appended records durable and counted.
	Sync() (err error)

	// Count returns the number of durable records.
	Count() (n uint64)

	// ReadAt copies durable records starting at record index first into dst
	// (len(dst) must be a multiple of the record size) and returns the number
	// of records read. It returns 0, nil at the end of the dataset.
	ReadAt(dst []byte, first uint64) (n int, err error)

	// Remove deletes the dataset physically.
	Remove() (err error)
}
