package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectUnmarshalJSONRejectsFloat(t *testing.T) {
	var obj Object
	err := obj.UnmarshalJSON([]byte(`{"x":1.5}`))
	assert.Error(t, err)
}

func TestObjectUnmarshalJSONRejectsNull(t *testing.T) {
	var obj Object
	err := obj.UnmarshalJSON([]byte(`{"x":null}`))
	assert.Error(t, err)
}

func TestObjectUnmarshalJSONAcceptsAllScalarKinds(t *testing.T) {
	var obj Object
	require.NoError(t, obj.UnmarshalJSON([]byte(`{"s":"hi","n":7,"b":true,"arr":[1,"two",false],"o":{"k":1}}`)))

	assert.Equal(t, String("hi"), obj["s"])
	assert.Equal(t, Int(7), obj["n"])
	assert.Equal(t, Bool(true), obj["b"])
	assert.Equal(t, Array{Int(1), String("two"), Bool(false)}, obj["arr"])
	assert.Equal(t, Object{"k": Int(1)}, obj["o"])
}

func TestObjectMarshalJSONSortsKeys(t *testing.T) {
	obj := NewObject("zeta", Int(1), "alpha", Int(2))
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"zeta":1}`, string(data))
}

func TestSortedKeysOnNilObject(t *testing.T) {
	var obj Object
	assert.Empty(t, obj.SortedKeys())
}

func TestNewObjectPanicsOnOddArgs(t *testing.T) {
	assert.Panics(t, func() {
		NewObject("a")
	})
}

func TestNewObjectPanicsOnNonStringKey(t *testing.T) {
	assert.Panics(t, func() {
		NewObject(1, Int(1))
	})
}
