package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Outcome classifies how the daemon disposed of one envelope.
type Outcome string

const (
	OutcomeApplied           Outcome = "applied"
	OutcomeStatusRead        Outcome = "status_read"
	OutcomeRejectedPolicy    Outcome = "rejected_by_policy"
	OutcomePersistenceFailed Outcome = "persistence_failed"
	OutcomeBadSignature      Outcome = "bad_signature"
	OutcomeReplayed          Outcome = "replayed"
	OutcomeStale             Outcome = "stale"
	OutcomeMalformed         Outcome = "malformed"
)

// Disposition is one row recording what the daemon did with a received
// envelope.
type Disposition struct {
	CorrelationID string
	EnvelopeHash  string
	Command       string
	Outcome       Outcome
	AppliedKeys   []string
	StagedKeys    []string
	FailedKeys    []string
	RejectReason  string
	PeerUID       *uint32
	PeerGID       *uint32
	ReceivedAt    int64
}

// Record inserts d. Uses ON CONFLICT(correlation_id) DO NOTHING for
// idempotency: a retried write for a correlation id already logged is
// silently accepted rather than erroring, since the daemon only ever logs
// a disposition once per connection but a caller retrying after a
// transient DB error must be able to retry safely.
func (l *Log) Record(ctx context.Context, d Disposition) error {
	applied, err := json.Marshal(d.AppliedKeys)
	if err != nil {
		return fmt.Errorf("marshal applied keys: %w", err)
	}
	staged, err := json.Marshal(d.StagedKeys)
	if err != nil {
		return fmt.Errorf("marshal staged keys: %w", err)
	}
	failed, err := json.Marshal(d.FailedKeys)
	if err != nil {
		return fmt.Errorf("marshal failed keys: %w", err)
	}

	var uid, gid any
	if d.PeerUID != nil {
		uid = *d.PeerUID
	}
	if d.PeerGID != nil {
		gid = *d.PeerGID
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO dispositions
		(correlation_id, envelope_hash, command, outcome, applied_keys, staged_keys, failed_keys, reject_reason, peer_uid, peer_gid, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(correlation_id) DO NOTHING
	`,
		d.CorrelationID,
		d.EnvelopeHash,
		d.Command,
		string(d.Outcome),
		string(applied),
		string(staged),
		string(failed),
		d.RejectReason,
		uid,
		gid,
		d.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("record disposition: %w", err)
	}
	return nil
}

// Recent returns the most recent n dispositions, newest first, for
// `policyctl status --audit`.
func (l *Log) Recent(ctx context.Context, n int) ([]Disposition, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT correlation_id, envelope_hash, command, outcome, applied_keys, staged_keys, failed_keys, reject_reason, peer_uid, peer_gid, received_at
		FROM dispositions
		ORDER BY received_at DESC, id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query dispositions: %w", err)
	}
	defer rows.Close()

	var out []Disposition
	for rows.Next() {
		var (
			d                       Disposition
			outcome                 string
			applied, staged, failed string
			uid, gid                sql.NullInt64
		)
		if err := rows.Scan(&d.CorrelationID, &d.EnvelopeHash, &d.Command, &outcome,
			&applied, &staged, &failed, &d.RejectReason, &uid, &gid, &d.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan disposition: %w", err)
		}
		d.Outcome = Outcome(outcome)
		if err := json.Unmarshal([]byte(applied), &d.AppliedKeys); err != nil {
			return nil, fmt.Errorf("unmarshal applied keys: %w", err)
		}
		if err := json.Unmarshal([]byte(staged), &d.StagedKeys); err != nil {
			return nil, fmt.Errorf("unmarshal staged keys: %w", err)
		}
		if err := json.Unmarshal([]byte(failed), &d.FailedKeys); err != nil {
			return nil, fmt.Errorf("unmarshal failed keys: %w", err)
		}
		if uid.Valid {
			v := uint32(uid.Int64)
			d.PeerUID = &v
		}
		if gid.Valid {
			v := uint32(gid.Int64)
			d.PeerGID = &v
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispositions: %w", err)
	}
	return out, nil
}
