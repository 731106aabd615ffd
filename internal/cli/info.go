package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/blndgs/peerreview"
	"github.com/blndgs/peerreview/pipeline"
)

// NewAddressCommand creates the address command.
func NewAddressCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the smart account address of the configured key",
		Long: `Print the smart account address of the configured key.

The address is the same before and after the account is deployed. It is
computed offline when account_proxy_code is configured; otherwise the
EntryPoint on node_url is asked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}

			var chain pipeline.Chain
			if cfg.AccountProxyCode == "" {
				node, err := ethclient.DialContext(cmd.Context(), cfg.NodeURL)
				if err != nil {
					return fmt.Errorf("failed to dial node: %w", err)
				}
				defer node.Close()
				chain = node
			}

			acct, err := pipeline.New(pipelineConfig(cfg), nil, nil, chain).Account(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "account: %s\n", acct.Address.Hex())
			fmt.Fprintf(out, "owner:   %s\n", acct.Owner().Hex())
			fmt.Fprintf(out, "factory: %s\n", acct.Factory.Hex())
			fmt.Fprintf(out, "salt:    %s\n", acct.Salt)
			return nil
		},
	}
}

// NewCallsCommand creates the calls command.
func NewCallsCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List the contract functions and their default inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), peerreview.Calls())
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FUNCTION\tKIND\tINPUTS")
			for _, c := range peerreview.Calls() {
				kind := "write"
				if c.ReadOnly {
					kind = "read"
				}

				inputs := ""
				for i, in := range c.Inputs {
					if i > 0 {
						inputs += " "
					}
					inputs += in.Name + "=" + displayValue(in.Value)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.FunctionName, kind, inputs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the registry as JSON")

	return cmd
}

const maxValueWidth = 48

// displayValue fits a default input value on one table row.
func displayValue(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	if r := []rune(v); len(r) > maxValueWidth {
		v = string(r[:maxValueWidth]) + "..."
	}
	return v
}
