package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/blndgs/peerreview"
)

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <function> [name=value...]",
		Short: "Send a sponsored state-changing call",
		Long: `Send a sponsored state-changing call to the peer-review contract.

Inputs that are not given keep their default value.

Example:
  peerreview send reviewerVote submissionId=3 vote=1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(args[1:])
			if err != nil {
				return err
			}

			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}

			d, err := dial(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			result, err := d.pipeline.SendFunction(cmd.Context(), args[0], inputs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <function> [name=value...]",
		Short: "Call a view function",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(args[1:])
			if err != nil {
				return err
			}

			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}

			d, err := dial(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			result, err := d.pipeline.Read(cmd.Context(), args[0], inputs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"functionName": args[0], "result": result})
		},
	}
}

// parseInputs turns name=value arguments into call inputs.
func parseInputs(args []string) (map[string]string, error) {
	inputs := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: expected name=value, got %q", peerreview.ErrInvalidInput, arg)
		}
		if _, dup := inputs[name]; dup {
			return nil, fmt.Errorf("%w: %s given twice", peerreview.ErrInvalidInput, name)
		}
		inputs[name] = value
	}
	return inputs, nil
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
