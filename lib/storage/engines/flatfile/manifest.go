package flatfile

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	manifestName    = "product.yaml"
	manifestTmpName = ".product.yaml.tmp"
	manifestVersion = 1
)

// manifest is the catalog of a product directory
type manifest struct {
	Version    int                     `yaml:"version"`
	Backend    storage.Kind            `yaml:"backend"`
	Product    string                  `yaml:"product"`
	CreatedAt  time.Time               `yaml:"created_at"`
	Partitions map[string]int          `yaml:"partitions"`
	Datasets   map[string]datasetEntry `yaml:"datasets"` // key: DatasetID.Path()
}

type datasetEntry struct {
	Partition  string `yaml:"partition,omitempty"`
	Index      int    `yaml:"index,omitempty"`
	Name       string `yaml:"name"`
	Codec      string `yaml:"codec"`
	RecordSize int    `yaml:"record_size"`
}

func (e datasetEntry) id() storage.DatasetID {
	if e.Partition != "" {
		return storage.MemberID(e.Partition, e.Index)
	}
	return storage.CollectionID(e.Name)
}

func newManifest(product string) manifest {
	return manifest{
		Version:    manifestVersion,
		Backend:    storage.KindFile,
		Product:    product,
		CreatedAt:  time.Now().UTC(),
		Partitions: map[string]int{},
		Datasets:   map[string]datasetEntry{},
	}
}

// loadManifest reads the manifest of a product directory
func loadManifest(fs afero.Fs, dir string) (manifest, error) {
	var m manifest
	data, err := afero.ReadFile(fs, filepath.Join(dir, manifestName))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Backend != storage.KindFile || m.Version != manifestVersion {
		return m, fmt.Errorf("unsupported manifest (backend %q, version %d)", m.Backend, m.Version)
	}
	if m.Partitions == nil {
		m.Partitions = map[string]int{}
	}
	if m.Datasets == nil {
		m.Datasets = map[string]datasetEntry{}
	}
	return m, nil
}

// persist writes the manifest to a temporary file and renames it over the old one
func (m *manifest) persist(fs afero.Fs, dir string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, manifestTmpName)
	f, err := fs.OpenFile(tmp, osCreateTrunc, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fs.Rename(tmp, filepath.Join(dir, manifestName))
}
