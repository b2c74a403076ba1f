package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "hydromon",
	Short:        "Monitoring agent for LeHydroSys hydroponic systems",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	logger = slog.Default()
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hydromon/config.toml)")
	rootCmd.PersistentFlags().String("api.url", "", "LeHydroSys server URL")
	rootCmd.PersistentFlags().Duration("api.timeout", 0, "HTTP request timeout")
	rootCmd.PersistentFlags().Bool("api.insecure_skip_verify", false, "skip TLS certificate verification")
	rootCmd.PersistentFlags().String("settings.driver", "", "settings store driver (file, postgres or memory)")
	rootCmd.PersistentFlags().String("settings.path", "", "settings file path")
	rootCmd.PersistentFlags().String("postgres.host", "", "host")
	rootCmd.PersistentFlags().Int("postgres.port", 0, "port")
	rootCmd.PersistentFlags().String("postgres.username", "", "username")
	rootCmd.PersistentFlags().String("postgres.password", "", "password")
	rootCmd.PersistentFlags().String("postgres.database", "", "database name")
	rootCmd.PersistentFlags().String("mqtt.broker", "", "MQTT broker address")
	rootCmd.PersistentFlags().String("mqtt.topic", "", "MQTT topic")
	rootCmd.PersistentFlags().String("log.level", "", "log level (debug, info, warn or error)")
	rootCmd.PersistentFlags().String("log.format", "", "log format (text or json)")
	rootCmd.PersistentFlags().String("log.file", "", "log to a rotated file instead of stderr")

	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))

	viper.SetDefault("api.url", "https://lehydrosys-sqfy.onrender.com")
	viper.SetDefault("api.timeout", "10s")
	viper.SetDefault("settings.driver", "file")
	viper.SetDefault("settings.path", "$HOME/.hydromon/settings.yaml")
	viper.SetDefault("postgres.port", "5432")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.max_size", 10)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
}

func initConfig() {
	dotenvErr := godotenv.Load()
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("/etc/hydromon")
		viper.AddConfigPath("$HOME/.hydromon")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configErr := viper.ReadInConfig()
	logger = newLogger()
	slog.SetDefault(logger)
	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		logger.LogAttrs(context.Background(), slog.LevelWarn, "Failed to load .env file", slog.Any("error", dotenvErr))
	}
	if configErr == nil {
		logger.LogAttrs(context.Background(), slog.LevelDebug, "Using config file", slog.String("config", viper.ConfigFileUsed()))
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	var w io.Writer = os.Stderr
	if path := viper.GetString("log.file"); path != "" {
		w = &lumberjack.Logger{
			Filename:   os.ExpandEnv(path),
			MaxSize:    viper.GetInt("log.max_size"),
			MaxBackups: viper.GetInt("log.max_backups"),
			MaxAge:     viper.GetInt("log.max_age"),
			Compress:   true,
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if viper.GetString("log.format") == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
