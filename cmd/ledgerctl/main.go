// Command ledgerctl runs operational tasks against the donation ledger database
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Version = "dev"

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the donation ledger: migrations, reconciliation, exports and admins",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML config file (default ./ledgerctl.yaml if present)")
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Overall timeout for the command")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	rootCmd.AddCommand(migrateCmd(v))
	rootCmd.AddCommand(reconcileCmd(v))
	rootCmd.AddCommand(exportCmd(v))
	rootCmd.AddCommand(adminCmd(v))

	return rootCmd
}
