package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/blndgs/peerreview/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("peerreview failed")
		os.Exit(1)
	}
}
