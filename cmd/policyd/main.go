// Command policyd is the control bus daemon: it listens on a Unix-domain
// socket, verifies and replay-guards every incoming signed envelope,
// validates set_policy arguments against the compiled policy schema, and
// serves get_status reads.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/controlbus/policyd/internal/auditlog"
	"github.com/controlbus/policyd/internal/config"
	"github.com/controlbus/policyd/internal/daemon"
	"github.com/controlbus/policyd/internal/effector"
	"github.com/controlbus/policyd/internal/keyfile"
	"github.com/controlbus/policyd/internal/policystate"
	"github.com/controlbus/policyd/internal/replayguard"
	"github.com/controlbus/policyd/internal/schema"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.FromEnv()

	pub, err := keyfile.LoadPublic(cfg.KeyDir)
	if err != nil {
		slog.Error("load public key failed", "error", err)
		os.Exit(1)
	}

	sch, err := schema.Load(cfg.SchemaFile)
	if err != nil {
		slog.Error("load policy schema failed", "error", err)
		os.Exit(1)
	}

	// Effector wiring is left to the deployment that embeds policyd; a
	// bare registry is a safe default where every runtime key is a no-op
	// until a concrete deployment registers effectors for the keys it
	// cares about.
	effectors := effector.NewRegistry()

	core, err := policystate.Open(cfg.ActiveFile, cfg.PendingFile, sch, effectors)
	if err != nil {
		slog.Error("open policy state failed", "error", err)
		os.Exit(1)
	}

	audit, err := auditlog.Open(cfg.AuditDB)
	if err != nil {
		slog.Warn("audit log unavailable, continuing without it", "error", err)
		audit = nil
	} else {
		defer audit.Close()
	}

	guard := replayguard.New()

	srv := daemon.New(core, guard, pub, sch, audit, slog.Default(), version)
	if err := srv.Bind(cfg.SocketPath); err != nil {
		slog.Error("bind socket failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("policyd starting", "socket", cfg.SocketPath, "version", version, "schema_hash", sch.Hash)
	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
		slog.Error("serve failed", "error", err)
		os.Exit(1)
	}
	slog.Info("policyd stopped")
}
