package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/lehydrosys/hydromon/pkg/api"
	"github.com/lehydrosys/hydromon/pkg/mqtt"
	"github.com/lehydrosys/hydromon/pkg/relay"
	"github.com/lehydrosys/hydromon/pkg/settings"
)

func newAPIClient() (*api.Client, error) {
	return api.New(api.Config{
		URL:                viper.GetString("api.url"),
		Timeout:            viper.GetDuration("api.timeout"),
		InsecureSkipVerify: viper.GetBool("api.insecure_skip_verify"),
		Logger:             logger,
	})
}

func newCommander(client *api.Client, observer relay.Observer) *relay.Commander {
	return relay.NewCommander(client, logger, observer)
}

func openSettings(ctx context.Context) (settings.Store, error) {
	driver := viper.GetString("settings.driver")
	cfg := settings.Config{
		Driver: driver,
		Path:   os.ExpandEnv(viper.GetString("settings.path")),
		Table:  viper.GetString("settings.table"),
	}
	if driver == "postgres" {
		cfg.PsqlInfo = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			viper.GetString("postgres.host"),
			viper.GetInt("postgres.port"),
			viper.GetString("postgres.username"),
			viper.GetString("postgres.password"),
			viper.GetString("postgres.database"),
		)
	}
	return settings.Open(ctx, cfg)
}

func newMQTTConfig() mqtt.Config {
	return mqtt.Config{
		Broker:    viper.GetString("mqtt.broker"),
		Topic:     viper.GetString("mqtt.topic"),
		ClientID:  viper.GetString("mqtt.client_id"),
		Username:  viper.GetString("mqtt.username"),
		Password:  viper.GetString("mqtt.password"),
		CAFile:    viper.GetString("mqtt.ca_file"),
		KeepAlive: viper.GetDuration("mqtt.keep_alive"),
		Logger:    logger,
	}
}
