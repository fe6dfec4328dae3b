// Package engines selects a storage backend implementation by kind.
package engines

import (
	"fmt"

	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/ValentinKolb/kstore/lib/storage/engines/container"
	"github.com/ValentinKolb/kstore/lib/storage/engines/flatfile"
)

// Kinds lists all backend kinds that NewBackend accepts
var Kinds = []storage.Kind{storage.KindFile, storage.KindContainer}

// NewBackend returns a backend of the given kind rooted at baseDir
func NewBackend(kind storage.Kind, baseDir string) (storage.Backend, error) {
	switch kind {
	case storage.KindFile:
		opts := flatfile.DefaultOptions()
		opts.BaseDir = baseDir
		return flatfile.NewBackend(opts), nil
	case storage.KindContainer:
		opts := container.DefaultOptions()
		opts.BaseDir = baseDir
		return container.NewBackend(opts), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q (valid: %v)", kind, Kinds)
	}
}
