// Package util provides small helpers shared by the kstore packages.
//
// The package contains:
//   - statistics: Stats and DistributionStats for judging how evenly records
//     spread over the members of a partition, and a BatchHistogram for drain
//     and flush sizes
//   - sysinfo: host introspection (cores, hostname, physical memory) used for
//     worker defaults and the CLI report
package util
