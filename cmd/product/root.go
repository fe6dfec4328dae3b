package product

import (
	"github.com/ValentinKolb/kstore/cmd/util"
	"github.com/ValentinKolb/kstore/lib/common"
	"github.com/spf13/cobra"
)

var (
	config common.Config

	// ProductCommands represents the product command group
	ProductCommands = &cobra.Command{
		Use:               "product",
		Short:             "Inspect and remove stored products",
		PersistentPreRunE: setupConfig,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	util.SetupStorageFlags(ProductCommands)

	// Add subcommands
	ProductCommands.AddCommand(lsCmd)
	ProductCommands.AddCommand(infoCmd)
	ProductCommands.AddCommand(catCmd)
	ProductCommands.AddCommand(rmCmd)

	catCmd.Flags().Int("limit", 0, util.WrapString("Print at most this many items (0 = all)"))
	catCmd.Flags().String("format", "text", util.WrapString("Output format of datasets and items (text, json)"))
	infoCmd.Flags().String("format", "text", util.WrapString("Output format (text, json)"))
}

// setupConfig reads the storage configuration
func setupConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	var err error
	config, err = util.GetConfig()
	return err
}
