package auditlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	log, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func uint32p(v uint32) *uint32 { return &v }

func TestRecordAndRecentRoundTrip(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	d := Disposition{
		CorrelationID: "corr-1",
		EnvelopeHash:  "hash-1",
		Command:       "set_policy",
		Outcome:       OutcomeApplied,
		AppliedKeys:   []string{"radio_enabled"},
		StagedKeys:    []string{},
		FailedKeys:    []string{},
		PeerUID:       uint32p(1000),
		PeerGID:       uint32p(1000),
		ReceivedAt:    1_700_000_000,
	}
	require.NoError(t, log.Record(ctx, d))

	entries, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "corr-1", entries[0].CorrelationID)
	assert.Equal(t, OutcomeApplied, entries[0].Outcome)
	assert.Equal(t, []string{"radio_enabled"}, entries[0].AppliedKeys)
	require.NotNil(t, entries[0].PeerUID)
	assert.Equal(t, uint32(1000), *entries[0].PeerUID)
}

func TestRecordIsIdempotentForDuplicateCorrelationID(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	d := Disposition{CorrelationID: "dup", Command: "set_policy", Outcome: OutcomeApplied, ReceivedAt: 1}
	require.NoError(t, log.Record(ctx, d))
	require.NoError(t, log.Record(ctx, d))

	entries, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, Disposition{CorrelationID: "a", Command: "set_policy", Outcome: OutcomeApplied, ReceivedAt: 1}))
	require.NoError(t, log.Record(ctx, Disposition{CorrelationID: "b", Command: "set_policy", Outcome: OutcomeApplied, ReceivedAt: 2}))

	entries, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].CorrelationID)
	assert.Equal(t, "a", entries[1].CorrelationID)
}

func TestRecentRespectsLimit(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Record(ctx, Disposition{
			CorrelationID: string(rune('a' + i)),
			Command:       "set_policy",
			Outcome:       OutcomeApplied,
			ReceivedAt:    int64(i),
		}))
	}

	entries, err := log.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecordWithoutPeerCredentialsLeavesThemNil(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, Disposition{
		CorrelationID: "no-peer",
		Command:       "set_policy",
		Outcome:       OutcomeMalformed,
		ReceivedAt:    1,
	}))

	entries, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].PeerUID)
	assert.Nil(t, entries[0].PeerGID)
}
