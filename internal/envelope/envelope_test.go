package envelope

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeMarshalUnmarshalRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_ = pub

	nonce := make([]byte, NonceSize)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	msg := Msg{
		Command:   CommandSetPolicy,
		Args:      NewObject("radio_enabled", Bool(true)),
		Nonce:     nonce,
		Timestamp: time.Now().Unix(),
	}
	sig, err := Sign(priv, msg.ToObject())
	require.NoError(t, err)

	env := Envelope{Msg: msg, Signature: sig}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, decoded.UnmarshalJSON(data))

	assert.Equal(t, msg.Command, decoded.Msg.Command)
	assert.Equal(t, msg.Timestamp, decoded.Msg.Timestamp)
	assert.Equal(t, msg.Nonce, decoded.Msg.Nonce)
	assert.Equal(t, msg.Args, decoded.Msg.Args)
	assert.Equal(t, sig, []byte(decoded.Signature))
}

func TestEnvelopeUnmarshalRejectsWrongNonceLength(t *testing.T) {
	raw := []byte(`{"msg":{"command":"set_policy","args":{},"nonce":"YWJj","timestamp":1},"signature":"AAAA"}`)
	var env Envelope
	err := env.UnmarshalJSON(raw)
	assert.Error(t, err)
}

func TestEnvelopeUnmarshalRejectsBadBase64(t *testing.T) {
	raw := []byte(`{"msg":{"command":"set_policy","args":{},"nonce":"not-base64!!","timestamp":1},"signature":"AAAA"}`)
	var env Envelope
	err := env.UnmarshalJSON(raw)
	assert.Error(t, err)
}

func TestEnvelopeUnmarshalEmptyArgsIsEmptyObject(t *testing.T) {
	raw := []byte(`{"msg":{"command":"get_status","args":{},"nonce":"MDEyMzQ1Njc4OWFiY2RlZg==","timestamp":1},"signature":"AAAA"}`)
	var env Envelope
	require.NoError(t, env.UnmarshalJSON(raw))
	assert.Equal(t, Object{}, env.Msg.Args)
}
