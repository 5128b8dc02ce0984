// Command policy-applier is the boot-time reconciler: it runs once early
// in boot, before any subsystem depending on reboot-classified policy keys
// starts, promoting staged pending keys into the active policy document.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/controlbus/policyd/internal/bootapply"
	"github.com/controlbus/policyd/internal/config"
	"github.com/controlbus/policyd/internal/schema"
)

func main() {
	cfg := config.FromEnv()

	sch, err := schema.Load(cfg.SchemaFile)
	if err != nil {
		slog.Error("load policy schema failed", "error", err)
		os.Exit(1)
	}

	backupDir := filepath.Dir(cfg.ActiveFile)
	report, err := bootapply.Run(cfg.ActiveFile, cfg.PendingFile, backupDir, sch, slog.Default())
	if err != nil {
		slog.Error("boot-time policy reconciliation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("boot-time policy reconciliation complete",
		"backup_path", report.BackupPath,
		"promoted", report.Promoted,
		"skipped_runtime_in_pending", report.SkippedRuntimeInPending,
	)
}
