package common

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/kstore/lib/storage"
)

// --------------------------------------------------------------------------
// Library configuration struct
// --------------------------------------------------------------------------

// Config holds the parameters shared by the kstore commands
type Config struct {
	// where products are stored and with which backend
	DataDir string
	Backend storage.Kind

	// collection and cache tuning
	PendingLimit  int // bytes a collection buffers before spilling to its dataset
	CacheCapacity int // items buffered per partition member by a PartitionCache

	// dispatcher
	Workers   int // 0 = number of cores
	GroupSize int // items handed to a worker at once

	// Logging configuration
	LogLevel string
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		DataDir:       "data",
		Backend:       storage.KindFile,
		PendingLimit:  1 << 20,
		CacheCapacity: 10000,
		Workers:       0,
		GroupSize:     1000,
		LogLevel:      "info",
	}
}

// Validate checks the configuration for values the library cannot work with
func (c *Config) Validate() error {
	switch c.Backend {
	case storage.KindFile, storage.KindContainer:
	default:
		return fmt.Errorf("invalid backend %q (expected %s or %s)", c.Backend, storage.KindFile, storage.KindContainer)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("cache capacity must be at least 1, got %d", c.CacheCapacity)
	}
	if c.GroupSize < 1 {
		return fmt.Errorf("group size must be at least 1, got %d", c.GroupSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Backend", string(c.Backend))
	addField("Pending Limit", fmt.Sprintf("%d bytes", c.PendingLimit))
	addField("Cache Capacity", fmt.Sprintf("%d items", c.CacheCapacity))

	addSection("Dispatcher")
	if c.Workers == 0 {
		addField("Workers", "auto")
	} else {
		addField("Workers", fmt.Sprintf("%d", c.Workers))
	}
	addField("Group Size", fmt.Sprintf("%d items", c.GroupSize))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
