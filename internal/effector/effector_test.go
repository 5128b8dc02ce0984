package effector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controlbus/policyd/internal/envelope"
)

func TestRegistryDispatchesToRegisteredEffector(t *testing.T) {
	reg := NewRegistry()
	mem := NewInMemory()
	reg.Register("radio_enabled", mem)

	err := reg.Apply("radio_enabled", envelope.Bool(true))
	require.NoError(t, err)
	assert.Equal(t, envelope.Bool(true), mem.Applied["radio_enabled"])
}

func TestRegistryNoOpForUnregisteredKey(t *testing.T) {
	reg := NewRegistry()
	err := reg.Apply("unregistered", envelope.Bool(true))
	assert.NoError(t, err)
}

func TestInMemoryReturnsErrorForFailOnKey(t *testing.T) {
	mem := NewInMemory()
	mem.FailOn["radio_enabled"] = struct{}{}

	err := mem.Apply("radio_enabled", envelope.Bool(true))
	require.Error(t, err)
	var applyErr *ApplyError
	assert.ErrorAs(t, err, &applyErr)
	assert.NotContains(t, mem.Applied, "radio_enabled")
}
