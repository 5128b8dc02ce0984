package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeysByCodePoint(t *testing.T) {
	obj := NewObject(
		"zeta", Int(1),
		"alpha", Int(2),
		"Beta", Int(3),
	)
	out, err := Canonicalize(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"Beta":3,"alpha":2,"zeta":1}`, string(out))
}

func TestCanonicalizeNestedObjectSortsAtEveryLevel(t *testing.T) {
	obj := NewObject(
		"outer", NewObject("b", Int(2), "a", Int(1)),
	)
	out, err := Canonicalize(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"outer":{"a":1,"b":2}}`, string(out))
}

func TestCanonicalizeIsDeterministic(t *testing.T) {
	obj := NewObject("k", String("v"), "n", Int(42), "b", Bool(true))
	first, err := Canonicalize(obj)
	require.NoError(t, err)
	second, err := Canonicalize(obj)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCanonicalizeArray(t *testing.T) {
	obj := NewObject("arr", Array{String("x"), Int(1), Bool(false)})
	out, err := Canonicalize(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"arr":["x",1,false]}`, string(out))
}

func TestCanonicalizeStringEscapesButDoesNotEscapeHTML(t *testing.T) {
	obj := NewObject("s", String("<tag>&"))
	out, err := Canonicalize(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"s":"<tag>&"}`, string(out))
}

func TestCanonicalizeNormalizesUnicodeToNFC(t *testing.T) {
	// "e" + combining acute accent (NFD) vs precomposed "é" (NFC).
	decomposed := NewObject("s", String("é"))
	composed := NewObject("s", String("é"))

	a, err := Canonicalize(decomposed)
	require.NoError(t, err)
	b, err := Canonicalize(composed)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCanonicalizeRejectsNull(t *testing.T) {
	// Object is built directly (bypassing NewObject, which panics on a
	// non-Value argument) to exercise the nil-Value rejection path that
	// would otherwise only be reachable via a hand-built Value tree.
	obj := Object{"s": nil}
	_, err := Canonicalize(obj)
	require.Error(t, err)
	var malformed *ErrMalformedMessage
	assert.ErrorAs(t, err, &malformed)
}
