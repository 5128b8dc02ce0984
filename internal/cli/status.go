package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/controlbus/policyd/internal/auditlog"
	"github.com/controlbus/policyd/internal/busclient"
	"github.com/controlbus/policyd/internal/config"
	"github.com/controlbus/policyd/internal/envelope"
	"github.com/controlbus/policyd/internal/keyfile"
)

// NewStatusCommand builds the `policyctl status [--audit]` subcommand: a
// signed get_status envelope dispatched through the same verify/replay-guard
// pipeline as set_policy, plus an optional direct read of the supplementary
// audit log.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	var showAudit bool
	var auditLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "fetch the daemon's current status document",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			cfg := config.FromEnv()

			priv, err := keyfile.LoadPrivate(cfg.KeyDir)
			if err != nil {
				formatter.Error("E_NO_KEY", err.Error(), nil)
				return WrapExitError(ExitCommandError, "load private key", err)
			}

			client := busclient.New(cfg.SocketPath, priv)
			env, err := client.BuildEnvelope("get_status", envelope.Object{})
			if err != nil {
				formatter.Error("E_BUILD_ENVELOPE", err.Error(), nil)
				return WrapExitError(ExitCommandError, "build envelope", err)
			}

			reply, err := client.Send(env)
			if err != nil {
				formatter.Error("E_SEND_FAILED", err.Error(), nil)
				return WrapExitError(ExitCommandError, "send envelope", err)
			}

			if reply.Status != "ok" {
				code, msg := "E_STATUS_FAILED", "status request failed"
				if reply.Error != nil {
					code, msg = reply.Error.Code, reply.Error.Message
				}
				formatter.Error(code, msg, nil)
				return NewExitError(ExitFailure, msg)
			}

			if err := formatter.Success(json.RawMessage(reply.Doc)); err != nil {
				return err
			}

			if showAudit {
				return printAuditTrail(cmd, formatter, cfg.AuditDB, auditLimit)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showAudit, "audit", false, "also print recent audit log entries")
	cmd.Flags().IntVar(&auditLimit, "audit-limit", 20, "number of audit entries to print with --audit")

	return cmd
}

// printAuditTrail opens the audit database directly (read-only from the
// CLI's perspective) and prints the most recent dispositions.
func printAuditTrail(cmd *cobra.Command, formatter *OutputFormatter, path string, limit int) error {
	log, err := auditlog.Open(path)
	if err != nil {
		formatter.Error("E_AUDIT_OPEN", err.Error(), nil)
		return WrapExitError(ExitCommandError, "open audit log", err)
	}
	defer log.Close()

	entries, err := log.Recent(context.Background(), limit)
	if err != nil {
		formatter.Error("E_AUDIT_QUERY", err.Error(), nil)
		return WrapExitError(ExitCommandError, "query audit log", err)
	}

	return formatter.Success(entries)
}
