package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "FTBUFFER"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "ftbuffer",
		Short:        "Real-time acquisition buffer server",
		SilenceUsage: true,
	}
	// dump / replay 连接的服务端地址
	cmd.PersistentFlags().String("addr", "127.0.0.1:1972", "buffer server address")
	if err := v.BindPFlag("addr", cmd.PersistentFlags().Lookup("addr")); err != nil {
		panic(err)
	}
	cmd.AddCommand(
		newServeCommand(v),
		newConfigCommand(),
		newDumpCommand(v),
		newReplayCommand(v),
	)
	return cmd
}

func mustBindPFlag(v *viper.Viper, key string, cmd *cobra.Command) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q: %v", key, err))
	}
}
