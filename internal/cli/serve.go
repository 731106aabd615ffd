package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/blndgs/peerreview/api"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the contract calls over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address, overrides the config file")

	return cmd
}

func serve(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.HTTP.Listen = opts.Listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	checkEntryPoint(ctx, d, cfg)

	gin.SetMode(gin.ReleaseMode)
	server, err := api.NewServer(d.pipeline)
	if err != nil {
		return err
	}

	return server.Run(ctx, cfg.HTTP.Listen)
}
