// Package testing provides standardised tests and benchmarks for storage
// backends that satisfy the storage.Backend interface.
//
// The package contains:
//   - testing: a conformance suite for the Backend, Namespace and Dataset contracts
//   - benchmark: append, sync and read throughput of a backend
//
// Example usage:
//
//	// Creating a factory function for your backend
//	factory := func(dir string) storage.Backend {
//		return mybackend.NewBackend(&mybackend.Options{BaseDir: dir})
//	}
//
//	// Running the standard test suite
//	stesting.RunBackendTests(t, "MyBackend", factory)
//
//	// Running performance benchmarks
//	stesting.RunBackendBenchmarks(b, "MyBackend", factory)
package testing
