// Package cli implements the roomchat command tree.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/logging"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// settings carries the viper instance and the config file path shared by
// every subcommand.
type settings struct {
	v          *viper.Viper
	configFile string
}

func (s *settings) load(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(s.v, s.configFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format), nil
}

// bind ties a flag of cmd to a configuration key.
func (s *settings) bind(cmd *cobra.Command, key, flag string) {
	_ = s.v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func newRootCmd() *cobra.Command {
	s := &settings{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:          "roomchat",
		Short:        "Real-time room chat server",
		Long:         "roomchat serves authenticated WebSocket chat rooms backed by Redis presence and a SQLite message log, and manages rooms, users and tokens.",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&s.configFile, "config", "", "path to a config file (yaml, toml or json)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json or console)")
	_ = s.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = s.v.BindPFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(
		newServeCmd(s),
		newTokenCmd(s),
		newRoomCmd(s),
		newUserCmd(s),
	)

	return rootCmd
}
