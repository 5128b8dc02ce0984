// Package bootapply implements the boot-time applier: a one-shot
// reconciler that promotes staged pending policy into active policy
// before any subsystem depending on reboot-classified keys starts.
package bootapply

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/controlbus/policyd/internal/policystate"
	"github.com/controlbus/policyd/internal/schema"
)

// Report summarizes one applier run, for logging and exit-code decisions
// in cmd/policy-applier.
type Report struct {
	BackupPath              string
	Promoted                []string
	SkippedRuntimeInPending []string
}

// Run executes the boot-time reconciliation protocol:
//  1. Read active and pending documents (missing treated as empty).
//  2. Back up the active document under a time-sortable, UUIDv7-suffixed
//     name.
//  3. Promote every pending key into active, skipping (with a warning) any
//     pending key the schema now classifies as runtime rather than reboot
//     — that key was staged under a since-changed schema and must not be
//     silently promoted into active outside the runtime path.
//  4. Persist active atomically; clear and persist pending atomically.
//
// Run is idempotent: re-running it against an already-reconciled pair of
// documents (empty pending) is a no-op beyond producing a fresh backup.
func Run(activePath, pendingPath, backupDir string, sch *schema.Schema, log *slog.Logger) (*Report, error) {
	active, err := policystate.LoadDocument(activePath)
	if err != nil {
		return nil, fmt.Errorf("load active document: %w", err)
	}
	pending, err := policystate.LoadDocument(pendingPath)
	if err != nil {
		return nil, fmt.Errorf("load pending document: %w", err)
	}

	backupPath, err := backupActive(active, backupDir)
	if err != nil {
		return nil, fmt.Errorf("back up active document: %w", err)
	}
	log.Info("boot applier backed up active policy", "path", backupPath)

	report := &Report{BackupPath: backupPath}

	working := active.Clone()
	for key, val := range pending.Keys {
		ks, ok := sch.Keys[key]
		if ok && ks.Classification == schema.Runtime {
			log.Warn("skipping pending key reclassified as runtime since staging",
				"key", key)
			report.SkippedRuntimeInPending = append(report.SkippedRuntimeInPending, key)
			continue
		}
		working.Keys[key] = val
		report.Promoted = append(report.Promoted, key)
	}

	if err := working.Save(activePath); err != nil {
		return nil, fmt.Errorf("persist promoted active document: %w", err)
	}

	if err := (&policystate.Document{}).Save(pendingPath); err != nil {
		return nil, fmt.Errorf("persist cleared pending document: %w", err)
	}

	for _, key := range report.Promoted {
		log.Info("promoted pending key to active", "key", key)
	}

	return report, nil
}

func backupActive(active *policystate.Document, backupDir string) (string, error) {
	suffix := uuid.Must(uuid.NewV7()).String()
	path := fmt.Sprintf("%s/active.backup.%s.json", backupDir, suffix)
	if err := active.Save(path); err != nil {
		return "", err
	}
	return path, nil
}
