package daemon

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controlbus/policyd/internal/busclient"
	"github.com/controlbus/policyd/internal/effector"
	"github.com/controlbus/policyd/internal/envelope"
	"github.com/controlbus/policyd/internal/keyfile"
	"github.com/controlbus/policyd/internal/policystate"
	"github.com/controlbus/policyd/internal/replayguard"
	"github.com/controlbus/policyd/internal/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSchema() *schema.Schema {
	return &schema.Schema{
		Hash: "test-hash",
		Keys: map[string]*schema.KeySchema{
			"radio_enabled": {Name: "radio_enabled", Kind: schema.KindBool, Classification: schema.Runtime},
			"boot_mode":     {Name: "boot_mode", Kind: schema.KindString, Classification: schema.Reboot},
		},
	}
}

// newTestServer binds a Server on a socket under t.TempDir(), returning the
// server, its socket path, and a busclient.Client already configured with a
// matching signing key pair.
func newTestServer(t *testing.T) (*Server, string, *busclient.Client) {
	t.Helper()
	dir := t.TempDir()

	keyDir := filepath.Join(dir, "keys")
	require.NoError(t, keyfile.Bootstrap(keyDir))
	priv, err := keyfile.LoadPrivate(keyDir)
	require.NoError(t, err)
	pub, err := keyfile.LoadPublic(keyDir)
	require.NoError(t, err)

	core, err := policystate.Open(
		filepath.Join(dir, "active.json"),
		filepath.Join(dir, "pending.json"),
		testSchema(),
		effector.NewRegistry(),
	)
	require.NoError(t, err)

	guard := replayguard.New()
	srv := New(core, guard, pub, testSchema(), nil, discardLogger(), "test-version")

	socketPath := filepath.Join(dir, "policyd.sock")
	require.NoError(t, srv.Bind(socketPath))

	client := busclient.New(socketPath, priv)
	return srv, socketPath, client
}

func serveInBackground(t *testing.T, srv *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(cancel)
	// Give the accept loop a moment to start listening before the test
	// dials; Bind has already created the socket file synchronously, so a
	// short sleep is enough for Accept to be in flight.
	time.Sleep(10 * time.Millisecond)
}

func TestSetPolicyRuntimeKeyAppliedEndToEnd(t *testing.T) {
	srv, _, client := newTestServer(t)
	serveInBackground(t, srv)

	env, err := client.BuildEnvelope(envelope.CommandSetPolicy, envelope.NewObject("radio_enabled", envelope.Bool(true)))
	require.NoError(t, err)

	reply, err := client.Send(env)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Status)
}

func TestSetPolicyRejectsUnknownKeyEndToEnd(t *testing.T) {
	srv, _, client := newTestServer(t)
	serveInBackground(t, srv)

	env, err := client.BuildEnvelope(envelope.CommandSetPolicy, envelope.NewObject("nonexistent", envelope.Bool(true)))
	require.NoError(t, err)

	reply, err := client.Send(env)
	require.NoError(t, err)
	assert.Equal(t, "error", reply.Status)
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeRejectedByPolicy, reply.Error.Code)
}

func TestGetStatusEndToEnd(t *testing.T) {
	srv, _, client := newTestServer(t)
	serveInBackground(t, srv)

	env, err := client.BuildEnvelope("get_status", envelope.Object{})
	require.NoError(t, err)

	reply, err := client.Send(env)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Status)
	assert.NotNil(t, reply.Doc)
}

func TestBadSignatureRejectedEndToEnd(t *testing.T) {
	srv, socketPath, _ := newTestServer(t)
	serveInBackground(t, srv)

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	rogueClient := busclient.New(socketPath, otherPriv)

	env, err := rogueClient.BuildEnvelope(envelope.CommandSetPolicy, envelope.NewObject("radio_enabled", envelope.Bool(true)))
	require.NoError(t, err)

	reply, err := rogueClient.Send(env)
	require.NoError(t, err)
	assert.Equal(t, "error", reply.Status)
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeBadSignature, reply.Error.Code)
}

func TestReplayedEnvelopeRejectedEndToEnd(t *testing.T) {
	srv, _, client := newTestServer(t)
	serveInBackground(t, srv)

	env, err := client.BuildEnvelope(envelope.CommandSetPolicy, envelope.NewObject("radio_enabled", envelope.Bool(true)))
	require.NoError(t, err)

	first, err := client.Send(env)
	require.NoError(t, err)
	assert.Equal(t, "ok", first.Status)

	second, err := client.Send(env)
	require.NoError(t, err)
	assert.Equal(t, "error", second.Status)
	require.NotNil(t, second.Error)
	assert.Equal(t, CodeReplayedEnvelope, second.Error.Code)
}

func TestStaleEnvelopeRejectedEndToEnd(t *testing.T) {
	srv, _, client := newTestServer(t)
	serveInBackground(t, srv)

	// Signed directly (rather than via BuildEnvelope, which always stamps
	// the current time) so the stale timestamp is part of what gets
	// signed, and the signature itself still verifies.
	msg := envelope.Msg{
		Command:   envelope.CommandSetPolicy,
		Args:      envelope.NewObject("radio_enabled", envelope.Bool(true)),
		Nonce:     make([]byte, envelope.NonceSize),
		Timestamp: time.Now().Add(-1 * time.Hour).Unix(),
	}
	sig, err := envelope.Sign(client.PrivateKey, msg.ToObject())
	require.NoError(t, err)
	env := envelope.Envelope{Msg: msg, Signature: sig}

	reply, err := client.Send(env)
	require.NoError(t, err)
	assert.Equal(t, "error", reply.Status)
	require.NotNil(t, reply.Error)
	assert.Equal(t, CodeStaleEnvelope, reply.Error.Code)
}
