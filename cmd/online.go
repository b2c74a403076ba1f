package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lehydrosys/hydromon/pkg/connectivity"
)

var onlineCmd = &cobra.Command{
	Use:          "online",
	Short:        "Check network connectivity",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := connectivity.New(connectivity.Config{
			ProbeAddr:    viper.GetString("connectivity.probe_addr"),
			ProbeTimeout: viper.GetDuration("connectivity.probe_timeout"),
			Logger:       logger,
		})
		if !o.Online(cmd.Context()) {
			return fmt.Errorf("offline")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "online")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(onlineCmd)
}
