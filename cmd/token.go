package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var registerTokenCmd = &cobra.Command{
	Use:          "register-token <token>",
	Short:        "Register a push notification token with the server",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		if err := client.RegisterToken(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token registered")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerTokenCmd)
}
