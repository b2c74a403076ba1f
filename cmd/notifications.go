package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var notificationsCmd = &cobra.Command{
	Use:          "notifications [on|off|status]",
	Short:        "Enable, disable or show alert notifications",
	Args:         cobra.MaximumNArgs(1),
	ValidArgs:    []string{"on", "off", "status"},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "status"
		if len(args) == 1 {
			action = args[0]
		}
		store, err := openSettings(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		switch action {
		case "on", "off":
			if err := store.SetNotificationsEnabled(cmd.Context(), action == "on"); err != nil {
				return err
			}
		case "status":
		default:
			return fmt.Errorf("unknown action %q", action)
		}
		enabled, err := store.NotificationsEnabled(cmd.Context())
		if err != nil {
			return err
		}
		last, err := store.LastNotificationSent(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if enabled {
			fmt.Fprintln(out, "Notifications: on")
		} else {
			fmt.Fprintln(out, "Notifications: off")
		}
		if last.IsZero() {
			fmt.Fprintln(out, "Last sent: never")
		} else {
			fmt.Fprintf(out, "Last sent: %s\n", last.Local().Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
}
