package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lehydrosys/hydromon/internal/server"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the hosted graph view URL",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), viper.GetString("graph.url"))
	},
}

func init() {
	viper.SetDefault("graph.url", server.DefaultGraphURL)
	rootCmd.AddCommand(graphCmd)
}
