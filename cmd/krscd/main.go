// Krscd shadows the Linux kernel FIB in memory, resolves BGP nexthops
// against it, and decides which kernel-learned routes get redistributed
// back into BGP.
//
//	krscd run --config /etc/krscd.yaml        # run the reconciler loop
//	krscd show kroute --table 0               # inspect mirrored state
//	krscd show nexthop
//	krscd version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kroutesync/krsc/pkg/util"
	"github.com/kroutesync/krsc/pkg/version"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "krscd",
	Short:             "Kernel route synchronization core",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Krscd shadows the Linux kernel FIB in memory, resolves BGP nexthops
against it, and redistributes kernel-learned routes back into BGP.

  krscd run --config /etc/krscd.yaml
  krscd show kroute --table 0
  krscd show nexthop`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		if configPath == "" {
			configPath = "/etc/krscd.yaml"
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default /etc/krscd.yaml)")
	rootCmd.AddCommand(newRunCmd(), newShowCmd(), versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("krscd dev build (use 'make build' for version info)")
		} else {
			fmt.Printf("krscd %s (%s)\n", version.Version, version.GitCommit)
		}
	},
}

func mustLogLevel(level string) {
	if err := util.SetLogLevel(level); err != nil {
		util.Logger.Warnf("invalid log level %q, keeping default: %v", level, err)
	}
}
