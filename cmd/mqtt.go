package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lehydrosys/hydromon/pkg/mqtt"
)

var mqttCmd = &cobra.Command{
	Use:   "mqtt",
	Short: "MQTT broker commands",
}

var mqttPublishCmd = &cobra.Command{
	Use:          "publish <payload>",
	Short:        "Publish a message to the sensor topic",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := mqtt.New(newMQTTConfig())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("mqtt.publish_timeout"))
		defer cancel()
		if err := sub.Connect(ctx); err != nil {
			return err
		}
		defer sub.Close()
		if err := sub.Publish(ctx, []byte(strings.Join(args, " "))); err != nil {
			return err
		}
		logger.LogAttrs(ctx, slog.LevelDebug, "Published MQTT message", slog.String("topic", sub.Topic()))
		fmt.Fprintf(cmd.OutOrStdout(), "published to %s\n", sub.Topic())
		return nil
	},
}

func init() {
	viper.SetDefault("mqtt.topic", mqtt.DefaultTopic)
	viper.SetDefault("mqtt.keep_alive", mqtt.DefaultKeepAlive.String())
	viper.SetDefault("mqtt.publish_timeout", (10 * time.Second).String())

	mqttCmd.AddCommand(mqttPublishCmd)
	rootCmd.AddCommand(mqttCmd)
}
