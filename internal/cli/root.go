// Package cli implements the peerreview command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/blndgs/peerreview/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// NewRootCommand creates the root command of the peerreview CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "peerreview",
		Short: "Sponsored peer-review contract calls from a smart account",
		Long: `peerreview sends calls to the peer-review contract as ERC-4337 user
operations from a counterfactual smart account. Gas is sponsored by a
paymaster and the operations are submitted to a bundler.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("PEERREVIEW_CONFIG"), "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (console|json), overrides the config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewReadCommand(opts))
	cmd.AddCommand(NewAddressCommand(opts))
	cmd.AddCommand(NewCallsCommand(opts))

	return cmd
}

// loadConfig reads and validates the configuration, applies the log flags
// and sets up the global logger.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}

	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := setupLogger(cmd.ErrOrStderr(), cfg.Log); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setupLogger(w io.Writer, cfg config.Log) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return nil
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	return nil
}
