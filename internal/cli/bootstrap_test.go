package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controlbus/policyd/internal/keyfile"
)

func TestBootstrapCreatesKeyPair(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	t.Setenv("CONTROLBUS_KEY_DIR", dir)

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"bootstrap"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(filepath.Join(dir, "sign_sk"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "sign_pk"))
	require.NoError(t, err)
}

func TestBootstrapSucceedsWhenAlreadyPresent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	require.NoError(t, keyfile.Bootstrap(dir))
	t.Setenv("CONTROLBUS_KEY_DIR", dir)

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"bootstrap"})
	assert.NoError(t, cmd.Execute())
}

func TestBootstrapRotateChangesKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	require.NoError(t, keyfile.Bootstrap(dir))
	firstPub, err := keyfile.LoadPublic(dir)
	require.NoError(t, err)

	t.Setenv("CONTROLBUS_KEY_DIR", dir)
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"bootstrap", "--rotate"})
	require.NoError(t, cmd.Execute())

	secondPub, err := keyfile.LoadPublic(dir)
	require.NoError(t, err)
	assert.NotEqual(t, firstPub, secondPub)
}
