package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/controlbus/policyd/internal/busclient"
	"github.com/controlbus/policyd/internal/config"
	"github.com/controlbus/policyd/internal/envelope"
	"github.com/controlbus/policyd/internal/keyfile"
)

// NewApplyCommand builds the `policyctl apply --policy-file PATH`
// subcommand: the multi-key counterpart to `set`, reading a JSON object of
// key/value pairs from disk and sending them as a single set_policy
// envelope so the daemon's all-or-nothing validation applies across the
// whole batch.
func NewApplyCommand(opts *RootOptions) *cobra.Command {
	var policyFile string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "apply a batch of policy keys from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			if policyFile == "" {
				return NewExitError(ExitCommandError, "--policy-file is required")
			}

			raw, err := os.ReadFile(policyFile)
			if err != nil {
				formatter.Error("E_READ_FILE", err.Error(), nil)
				return WrapExitError(ExitCommandError, "read policy file", err)
			}

			var msgArgs envelope.Object
			if err := msgArgs.UnmarshalJSON(raw); err != nil {
				formatter.Error("E_PARSE_FILE", err.Error(), nil)
				return WrapExitError(ExitCommandError, "parse policy file", err)
			}

			cfg := config.FromEnv()
			priv, err := keyfile.LoadPrivate(cfg.KeyDir)
			if err != nil {
				formatter.Error("E_NO_KEY", err.Error(), nil)
				return WrapExitError(ExitCommandError, "load private key", err)
			}

			client := busclient.New(cfg.SocketPath, priv)
			env, err := client.BuildEnvelope(envelope.CommandSetPolicy, msgArgs)
			if err != nil {
				formatter.Error("E_BUILD_ENVELOPE", err.Error(), nil)
				return WrapExitError(ExitCommandError, "build envelope", err)
			}

			if dryRun {
				encoded, err := json.Marshal(env)
				if err != nil {
					return WrapExitError(ExitCommandError, "encode envelope", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
				return nil
			}

			reply, err := client.Send(env)
			if err != nil {
				formatter.Error("E_SEND_FAILED", err.Error(), nil)
				return WrapExitError(ExitCommandError, "send envelope", err)
			}

			return renderSetReply(formatter, reply)
		},
	}

	cmd.Flags().StringVar(&policyFile, "policy-file", "", "path to a JSON file of key/value policy pairs")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the signed envelope instead of sending it")

	return cmd
}
