package cli

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	"github.com/blndgs/peerreview/bundler"
	"github.com/blndgs/peerreview/config"
	"github.com/blndgs/peerreview/paymaster"
	"github.com/blndgs/peerreview/pipeline"
)

// deps is a pipeline together with the connections it runs on.
type deps struct {
	pipeline *pipeline.Pipeline
	bundler  *bundler.Client
	node     *ethclient.Client
}

func (d *deps) Close() {
	d.bundler.Close()
	d.node.Close()
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		PrivateKey:  cfg.PrivateKey,
		RPCURL:      cfg.RPCURL,
		ChainID:     cfg.ChainIDBig(),
		EntryPoint:  cfg.EntryPointAddress(),
		Contract:    cfg.Contract(),
		Resolver:    cfg.Resolver(),
		ExplorerURL: cfg.ExplorerURL,
	}
}

// dial connects to the node and the bundler and builds the pipeline.
func dial(ctx context.Context, cfg *config.Config) (*deps, error) {
	node, err := ethclient.DialContext(ctx, cfg.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node: %w", err)
	}

	bc, err := bundler.Dial(ctx, cfg.BundlerURL,
		bundler.WithPolling(cfg.ReceiptPolling.Delay, cfg.ReceiptPolling.Retries),
		bundler.WithReceiptFetcher(node),
	)
	if err != nil {
		node.Close()
		return nil, err
	}

	pm := paymaster.NewClient(cfg.PaymasterURL, cfg.EntryPointAddress())

	log.Debug().
		Str("node", cfg.NodeURL).
		Str("bundler", cfg.BundlerURL).
		Str("paymaster", cfg.PaymasterURL).
		Msg("connected")

	return &deps{
		pipeline: pipeline.New(pipelineConfig(cfg), pm, bc, node),
		bundler:  bc,
		node:     node,
	}, nil
}

// checkEntryPoint warns when the bundler does not list the configured
// EntryPoint.
func checkEntryPoint(ctx context.Context, d *deps, cfg *config.Config) {
	supported, err := d.bundler.SupportedEntryPoints(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not list bundler entry points")
		return
	}

	want := cfg.EntryPointAddress()
	for _, ep := range supported {
		if ep == want {
			return
		}
	}
	log.Warn().Stringer("entryPoint", want).Interface("supported", supported).Msg("bundler does not support the configured entry point")
}
