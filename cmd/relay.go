package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehydrosys/hydromon/pkg/relay"
)

var relayCmd = &cobra.Command{
	Use:          "relay <relay> <on|off> | relay <command>",
	Short:        "Switch a relay on or off",
	Example:      "  hydromon relay 1 on\n  hydromon relay relay2_off",
	Args:         cobra.RangeArgs(1, 2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		command, err := parseRelayArgs(args)
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		if err := newCommander(client, nil).Send(ctx, command); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", command)
		return nil
	},
}

func parseRelayArgs(args []string) (relay.Command, error) {
	if len(args) == 1 {
		return relay.ParseCommand(args[0])
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return "", fmt.Errorf("%w: relay must be 1 or 2", relay.ErrInvalidCommand)
	}
	switch args[1] {
	case "on":
		return relay.For(n, true)
	case "off":
		return relay.For(n, false)
	default:
		return "", fmt.Errorf("%w: state must be on or off", relay.ErrInvalidCommand)
	}
}

func init() {
	rootCmd.AddCommand(relayCmd)
}
