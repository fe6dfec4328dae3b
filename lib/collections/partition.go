package collections

import (
	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/ValentinKolb/kstore/lib/util"
)

// Partition is a fixed size family of sibling collections addressed by index.
// The caller decides which member a record belongs to (usually item % n).
//
// Thread-safety: Size, Index and At are safe for concurrent use; the members
// themselves are collections and need external synchronization.
type Partition[T comparable] struct {
	name    string
	codec   string
	members []*collectionImpl[T]
}

// PartitionInfo reports the record counts of the members of a partition
type PartitionInfo struct {
	Name         string                 `json:"name" yaml:"name"`
	Codec        string                 `json:"codec" yaml:"codec"`
	Size         int                    `json:"size" yaml:"size"`
	Counts       []uint64               `json:"counts" yaml:"counts"`
	Total        uint64                 `json:"total" yaml:"total"`
	Distribution util.DistributionStats `json:"distribution" yaml:"distribution"`
}

// Name returns the name of the partition inside its product
func (p *Partition[T]) Name() string {
	return p.name
}

// Size returns the number of members, fixed at creation
func (p *Partition[T]) Size() int {
	return len(p.members)
}

// Index returns the i-th member, failing with IndexOutOfBounds outside [0, Size())
func (p *Partition[T]) Index(i int) (Collection[T], error) {
	if i < 0 || i >= len(p.members) {
		return nil, storage.IndexOutOfBounds(i, len(p.members))
	}
	return p.members[i], nil
}

// At returns the i-th member and panics outside [0, Size()), like a slice
func (p *Partition[T]) At(i int) Collection[T] {
	return p.members[i]
}

// Flush flushes the members in index order and stops at the first failure.
// The returned PartialFlushFailure carries the failed index i: members below i
// are durable, members from i on keep their pending records.
func (p *Partition[T]) Flush() error {
	for i, m := range p.members {
		if err := m.Flush(); err != nil {
			log.Warningf("flush of partition %s stopped at member %d: %v", p.name, i, err)
			return storage.PartialFlushFailure(i, err)
		}
	}
	return nil
}

// NbItems returns the number of durable records of all members
func (p *Partition[T]) NbItems() uint64 {
	var total uint64
	for _, m := range p.members {
		total += m.NbItems()
	}
	return total
}

// Iterator returns a cursor over the durable records of all members, member after member
func (p *Partition[T]) Iterator() Iterator[T] {
	its := make([]Iterator[T], len(p.members))
	for i, m := range p.members {
		its[i] = m.Iterator()
	}
	return NewChainIterator(its...)
}

// Info returns the record counts of the members and how evenly they are spread
func (p *Partition[T]) Info() PartitionInfo {
	counts := make([]uint64, len(p.members))
	var total uint64
	for i, m := range p.members {
		counts[i] = m.NbItems()
		total += counts[i]
	}
	return PartitionInfo{
		Name:         p.name,
		Codec:        p.codec,
		Size:         len(p.members),
		Counts:       counts,
		Total:        total,
		Distribution: util.CountStats(counts),
	}
}

func (p *Partition[T]) pendingRecords() int {
	n := 0
	for _, m := range p.members {
		n += m.pendingRecords()
	}
	return n
}
