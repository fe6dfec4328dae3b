// Package storage defines the persistence contract behind kstore products
// and collections. A Backend turns a product name into a Namespace (a
// directory, a container file, ...) and a Namespace turns a dataset id into
// a Dataset: an append-only sequence of fixed-size records handled purely as
// encoded bytes. The collections package builds typed collections,
// partitions and products on top of these interfaces and never depends on a
// concrete backend.
//
// Key Components:
//
//   - Backend, Namespace, Dataset: the three layers every engine implements.
//     Appends become durable and counted only after Dataset.Sync, which is
//     what a collection flush maps to.
//
//   - DatasetID: addresses a plain collection ("solid") or a partition member
//     ("parts/3") inside a product.
//
//   - Error and RetCode: typed errors shared by all layers. Match them with
//     errors.Is against the sentinels (ErrIOFailure, ErrResourceGone, ...);
//     PartialFlushFailure carries the failing member index (see FailedIndex).
//
// Engines:
//
// The engines/flatfile package stores one flat file per dataset inside one
// directory per product. The engines/container package multiplexes all
// datasets of a product inside one SQLite container file. engines.NewBackend
// selects one of them by Kind.
//
// The testing package (github.com/ValentinKolb/kstore/lib/storage/testing)
// provides a conformance suite every engine runs:
//   - RunBackendTests: validates an engine against the contract above
//   - RunBackendBenchmarks: append, sync and scan throughput
package storage
