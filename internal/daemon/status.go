package daemon

import (
	"github.com/controlbus/policyd/internal/envelope"
	"github.com/controlbus/policyd/internal/policystate"
)

// StatusDocument is the read-only observable snapshot exposed by
// get_status: active policy, the list of keys awaiting reboot, daemon
// version, last-applied timestamp, and the loaded schema's content hash
// (the hash lets an operator detect a schema/binary mismatch across
// restarts).
type StatusDocument struct {
	Active          envelope.Object `json:"active"`
	PendingKeys     []string        `json:"pending_keys"`
	Version         string          `json:"version"`
	SchemaHash      string          `json:"schema_hash"`
	LastAppliedUnix int64           `json:"last_applied_unix"`
}

func buildStatus(snap policystate.Snapshot, version, schemaHash string, lastApplied int64) StatusDocument {
	keys := make([]string, 0, len(snap.Pending))
	for k := range snap.Pending {
		keys = append(keys, k)
	}
	return StatusDocument{
		Active:          snap.Active,
		PendingKeys:     keys,
		Version:         version,
		SchemaHash:      schemaHash,
		LastAppliedUnix: lastApplied,
	}
}
