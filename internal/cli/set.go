package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/controlbus/policyd/internal/busclient"
	"github.com/controlbus/policyd/internal/config"
	"github.com/controlbus/policyd/internal/envelope"
	"github.com/controlbus/policyd/internal/keyfile"
)

// NewSetCommand builds the `policyctl set KEY VALUE` subcommand: it builds
// a one-key set_policy envelope, signs it, and sends it. Exits 0 if the
// key was applied or staged, non-zero on rejection. With --dry-run, it
// does not send; it prints the signed envelope instead.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "set a single policy key",
		Long: "Set a single policy key to VALUE. VALUE is sniffed as bool, then int, " +
			"then string — a string-kind key given a value that looks numeric (e.g. \"5\") " +
			"will be sent as an integer and rejected by the daemon as InvalidValue. `set` " +
			"has no way to send such a value as a string; `apply --policy-file` takes typed JSON values.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			key, raw := args[0], args[1]
			cfg := config.FromEnv()

			priv, err := keyfile.LoadPrivate(cfg.KeyDir)
			if err != nil {
				formatter.Error("E_NO_KEY", err.Error(), nil)
				return WrapExitError(ExitCommandError, "load private key", err)
			}

			client := busclient.New(cfg.SocketPath, priv)
			msgArgs := envelope.NewObject(key, parseScalar(raw))
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

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the signed envelope instead of sending it")

	return cmd
}

// renderSetReply prints the daemon's reply and maps it to the process exit
// code: 0 if the key was applied or staged, non-zero on any rejection.
func renderSetReply(formatter *OutputFormatter, reply *busclient.Reply) error {
	if reply.Status != "ok" {
		details := any(nil)
		if reply.Error != nil && len(reply.Error.Reasons) > 0 {
			details = json.RawMessage(reply.Error.Reasons)
		}
		code, msg := "E_REJECTED", "rejected by daemon"
		if reply.Error != nil {
			code, msg = reply.Error.Code, reply.Error.Message
		}
		formatter.Error(code, msg, details)
		return NewExitError(ExitFailure, msg)
	}

	var res struct {
		Failed []json.RawMessage `json:"failed"`
	}
	if err := json.Unmarshal(reply.Result, &res); err == nil && len(res.Failed) > 0 {
		msg := "one or more keys failed to apply"
		formatter.Error("E_KEY_FAILED", msg, json.RawMessage(reply.Result))
		return NewExitError(ExitFailure, msg)
	}

	formatter.Success(json.RawMessage(reply.Result))
	return nil
}
