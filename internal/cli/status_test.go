package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFailsWhenDaemonUnreachable(t *testing.T) {
	withBootstrappedKeys(t)
	t.Setenv("CONTROLBUS_SOCKET", filepath.Join(t.TempDir(), "does-not-exist.sock"))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"status"})
	assert.Error(t, cmd.Execute())
}

func TestStatusFailsWithoutBootstrappedKey(t *testing.T) {
	t.Setenv("CONTROLBUS_KEY_DIR", filepath.Join(t.TempDir(), "no-keys"))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"status"})
	assert.Error(t, cmd.Execute())
}
