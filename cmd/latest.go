package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehydrosys/hydromon/pkg/alert"
	"github.com/lehydrosys/hydromon/pkg/reading"
)

var latestCmd = &cobra.Command{
	Use:          "latest",
	Short:        "Print the latest sensor reading",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		payload, err := client.Latest(ctx)
		if err != nil {
			return err
		}
		r, err := reading.Decode(payload, time.Now())
		if err != nil {
			return fmt.Errorf("error parsing server data: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, line := range r.Lines() {
			fmt.Fprintln(out, line)
		}
		records := alert.Evaluate(r, alert.DefaultRules)
		if len(records) > 0 {
			fmt.Fprintln(out)
			for _, rec := range records {
				fmt.Fprintln(out, rec)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(latestCmd)
}
