package cli

import (
	"github.com/spf13/cobra"

	"github.com/controlbus/policyd/internal/config"
	"github.com/controlbus/policyd/internal/keyfile"
)

// NewBootstrapCommand creates the key pair if absent, exiting 0 on creation
// or when already present and non-zero if the key directory is not
// writable, or regenerates the key pair unconditionally with --rotate.
func NewBootstrapCommand(opts *RootOptions) *cobra.Command {
	var rotate bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "create the signing key pair if absent",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			cfg := config.FromEnv()

			if rotate {
				if err := keyfile.Rotate(cfg.KeyDir); err != nil {
					formatter.Error("E_ROTATE_FAILED", err.Error(), nil)
					return NewExitError(ExitCommandError, "rotate failed")
				}
				return formatter.Success("key pair rotated")
			}

			err := keyfile.Bootstrap(cfg.KeyDir)
			if err != nil {
				if _, already := err.(*keyfile.ErrAlreadyExists); already {
					return formatter.Success("key pair already present")
				}
				formatter.Error("E_BOOTSTRAP_FAILED", err.Error(), nil)
				return NewExitError(ExitCommandError, "bootstrap failed")
			}
			return formatter.Success("key pair created")
		},
	}

	cmd.Flags().BoolVar(&rotate, "rotate", false, "regenerate the key pair unconditionally")

	return cmd
}
