package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/kstore/lib/collections"
	"github.com/ValentinKolb/kstore/lib/common"
	"github.com/ValentinKolb/kstore/lib/dispatch"
	"github.com/ValentinKolb/kstore/lib/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStorageFlags adds the flags shared by all commands that open products
func SetupStorageFlags(cmd *cobra.Command) {
	def := common.DefaultConfig()

	key := "data-dir"
	cmd.PersistentFlags().String(key, def.DataDir, WrapString("Directory in which products are stored"))

	key = "backend"
	cmd.PersistentFlags().String(key, string(def.Backend), WrapString("Storage backend of the products (file: one flat file per collection, container: one container file per product)"))

	key = "pending-limit"
	cmd.PersistentFlags().Int(key, def.PendingLimit, WrapString("Bytes a collection buffers in memory before appending them to storage"))

	key = "cache-capacity"
	cmd.PersistentFlags().Int(key, def.CacheCapacity, WrapString("Items a partition cache buffers per member before draining them"))

	key = "workers"
	cmd.PersistentFlags().Int(key, def.Workers, WrapString("Number of dispatcher workers (0 = number of cores)"))

	key = "group-size"
	cmd.PersistentFlags().Int(key, def.GroupSize, WrapString("Number of items handed to a dispatcher worker at once"))

	key = "log-level"
	cmd.PersistentFlags().String(key, def.LogLevel, WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("kstore")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds the flags of a command to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetConfig reads the configuration from viper, validates it and sets up the loggers
func GetConfig() (common.Config, error) {
	conf := common.Config{
		DataDir:       viper.GetString("data-dir"),
		Backend:       storage.Kind(viper.GetString("backend")),
		PendingLimit:  viper.GetInt("pending-limit"),
		CacheCapacity: viper.GetInt("cache-capacity"),
		Workers:       viper.GetInt("workers"),
		GroupSize:     viper.GetInt("group-size"),
		LogLevel:      viper.GetString("log-level"),
	}
	if err := conf.Validate(); err != nil {
		return conf, err
	}
	if err := common.InitLoggers(conf); err != nil {
		return conf, err
	}
	return conf, nil
}

// OpenProduct opens the named product with the given configuration
func OpenProduct(conf common.Config, name string, deleteExisting bool) (*collections.Product, error) {
	opts := collections.DefaultOptions()
	opts.BaseDir = conf.DataDir
	opts.PendingLimit = conf.PendingLimit

	p, err := collections.OpenOrCreate(name, conf.Backend, deleteExisting, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open product %s: %w", name, err)
	}
	return p, nil
}

// NewDispatcher creates a dispatcher with the given configuration
func NewDispatcher(conf common.Config) *dispatch.Dispatcher {
	return dispatch.New(&dispatch.Options{
		Workers:   conf.Workers,
		GroupSize: conf.GroupSize,
	})
}
