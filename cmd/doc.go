// Package cmd implements the command-line interface of kstore. It provides a
// hierarchical command structure to inspect stored products and to benchmark
// the collection library on the local machine.
//
// The package is organized into several subpackages:
//
//   - product: Commands to list, inspect, print and remove products (ls, info, cat, rm)
//   - bench: Partitioned inserts through the dispatcher and partition caches
//   - sysinfo: Information about the host system
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See kstore -help for a list of all commands.
package cmd
