package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controlbus/policyd/internal/keyfile"
)

func withBootstrappedKeys(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "keys")
	require.NoError(t, keyfile.Bootstrap(dir))
	t.Setenv("CONTROLBUS_KEY_DIR", dir)
	return dir
}

func TestSetDryRunPrintsSignedEnvelopeWithoutSending(t *testing.T) {
	withBootstrappedKeys(t)
	t.Setenv("CONTROLBUS_SOCKET", filepath.Join(t.TempDir(), "does-not-exist.sock"))

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"set", "radio_enabled", "true", "--dry-run"})
	require.NoError(t, cmd.Execute())

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "msg")
	assert.Contains(t, decoded, "signature")
}

func TestSetFailsWithoutBootstrappedKey(t *testing.T) {
	t.Setenv("CONTROLBUS_KEY_DIR", filepath.Join(t.TempDir(), "no-keys"))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"set", "radio_enabled", "true"})
	assert.Error(t, cmd.Execute())
}

func TestSetFailsWhenDaemonUnreachable(t *testing.T) {
	withBootstrappedKeys(t)
	t.Setenv("CONTROLBUS_SOCKET", filepath.Join(t.TempDir(), "does-not-exist.sock"))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"set", "radio_enabled", "true"})
	assert.Error(t, cmd.Execute())
}

func TestSetRequiresExactlyTwoArgs(t *testing.T) {
	withBootstrappedKeys(t)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"set", "radio_enabled"})
	assert.Error(t, cmd.Execute())
}
