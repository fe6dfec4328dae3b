package sysinfo

import (
	"fmt"
	"os"
	"time"

	"github.com/ValentinKolb/kstore/cmd/util"
	libutil "github.com/ValentinKolb/kstore/lib/util"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// SysInfoCmd prints the resources of the host the dispatcher sizes itself by
var SysInfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Print information about the host system",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := libutil.GetSystemInfo()

		if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(info)
		}

		fmt.Printf("%-14s%s\n", "Hostname:", info.Hostname)
		fmt.Printf("%-14s%s/%s\n", "Platform:", info.OS, info.Arch)
		fmt.Printf("%-14s%s\n", "Go:", info.GoVersion)
		fmt.Printf("%-14s%d\n", "Cores:", info.Cores)
		if info.MemoryTotal > 0 {
			fmt.Printf("%-14s%s / %s used\n", "Memory:", libutil.FormatBytes(info.MemoryUsed()), libutil.FormatBytes(info.MemoryTotal))
		}
		if info.Uptime > 0 {
			fmt.Printf("%-14s%s\n", "Uptime:", time.Duration(info.Uptime)*time.Second)
		}
		return nil
	},
}

func init() {
	SysInfoCmd.Flags().Bool("yaml", false, util.WrapString("Print the information as YAML"))
}
