package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/kstore/cmd/bench"
	"github.com/ValentinKolb/kstore/cmd/product"
	"github.com/ValentinKolb/kstore/cmd/sysinfo"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kstore",
		Short: "persistent typed collections",
		Long: fmt.Sprintf(`kstore (v%s)

Typed, append-only collections of fixed-size records, grouped into
products and stored either as flat files or in one container file per
product. Partitions, partition caches and a parallel dispatcher fill them
from many workers at once.

Flags can also be set as environment variables KSTORE_<FLAG>
(e.g. KSTORE_DATA_DIR=/tmp/kstore) or in a .env file.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kstore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kstore v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(product.ProductCommands)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(sysinfo.SysInfoCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
