package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/legamerdc/ftbuf"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the buffer server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			log, err := cfg.Logging.New(os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := ftbuf.Run(ctx, cfg, log); err != nil {
				log.Error("Buffer stopped with error", zap.Error(err))
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("config", "", "path to a TOML configuration file")
	f.String("bind-address", "", "protocol listen address")
	f.String("http-bind-address", "", "status and metrics listen address, empty to disable")
	f.String("store", "", "store kind: ring or simple")
	f.Int("sample-capacity", 0, "number of samples kept in the ring")
	f.Int("event-capacity", 0, "number of events kept in the ring")
	f.Int("max-payload", 0, "largest accepted message body in bytes")
	f.Bool("reuse-port", false, "set SO_REUSEPORT on the listener")
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.String("log-format", "", "log format: auto, console, json, logfmt")
	for _, key := range []string{
		"config", "bind-address", "http-bind-address", "store",
		"sample-capacity", "event-capacity", "max-payload", "reuse-port",
		"log-level", "log-format",
	} {
		mustBindPFlag(v, key, cmd)
	}
	return cmd
}

// loadConfig 依次叠加默认值、配置文件、环境变量与命令行参数
func loadConfig(v *viper.Viper, cmd *cobra.Command) (ftbuf.Config, error) {
	isSet := func(key string) bool {
		if cmd.Flags().Changed(key) {
			return true
		}
		_, ok := os.LookupEnv(envName(key))
		return ok
	}

	cfg := ftbuf.DefaultConfig()
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = ftbuf.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if isSet("bind-address") {
		cfg.Server.BindAddress = v.GetString("bind-address")
	}
	if isSet("http-bind-address") {
		cfg.HTTP.BindAddress = v.GetString("http-bind-address")
	}
	if isSet("store") {
		cfg.Store.Kind = v.GetString("store")
	}
	if isSet("sample-capacity") {
		cfg.Store.SampleCapacity = v.GetInt("sample-capacity")
	}
	if isSet("event-capacity") {
		cfg.Store.EventCapacity = v.GetInt("event-capacity")
	}
	if isSet("max-payload") {
		cfg.Server.MaxPayload = v.GetInt("max-payload")
	}
	if isSet("reuse-port") {
		cfg.Server.ReusePort = v.GetBool("reuse-port")
	}
	if isSet("log-format") {
		cfg.Logging.Format = v.GetString("log-format")
	}
	if isSet("log-level") {
		if err := cfg.Logging.Level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}
