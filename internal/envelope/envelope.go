package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Msg is the signed payload of a command envelope. Command names the
// operation ("set_policy", or "get_status" for status reads); the daemon
// dispatches on it and rejects any other value.
type Msg struct {
	Command   string `json:"command"`
	Args      Object `json:"args"`
	Nonce     []byte `json:"-"`
	Timestamp int64  `json:"timestamp"`
}

// wireMsg is the JSON transport shape: Nonce is base64 in transport, raw
// bytes in memory.
type wireMsg struct {
	Command   string          `json:"command"`
	Args      json.RawMessage `json:"args"`
	Nonce     string          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
}

// Envelope is the two-field transport record `{msg, signature}`.
type Envelope struct {
	Msg       Msg
	Signature []byte
}

type wireEnvelope struct {
	Msg       json.RawMessage `json:"msg"`
	Signature string          `json:"signature"`
}

// CommandSetPolicy is the state-mutating command; the daemon's dispatch
// step also accepts "get_status" and rejects any other command.
const CommandSetPolicy = "set_policy"

// NonceSize is the fixed length, in bytes, of a command nonce.
const NonceSize = 16

// ToObject renders Msg as a canonical-codec Object so it can be passed to
// Canonicalize/Sign/Verify, which operate on the sealed Value model rather
// than on Go structs directly.
func (m Msg) ToObject() Object {
	return NewObject(
		"command", String(m.Command),
		"args", m.Args,
		"nonce", String(base64.StdEncoding.EncodeToString(m.Nonce)),
		"timestamp", Int(m.Timestamp),
	)
}

// MarshalJSON renders the envelope in wire form: msg as a nested object with
// base64 nonce, signature as base64.
func (e Envelope) MarshalJSON() ([]byte, error) {
	msgObj := e.Msg.ToObject()
	msgBytes, err := json.Marshal(msgObj)
	if err != nil {
		return nil, fmt.Errorf("marshal msg: %w", err)
	}
	w := wireEnvelope{
		Msg:       msgBytes,
		Signature: base64.StdEncoding.EncodeToString(e.Signature),
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses wire-form JSON into an Envelope. It does not verify
// the signature; callers must call Verify separately. A malformed frame
// (bad base64, wrong field types, non-integer timestamp) yields an error
// the caller should surface as a malformed-message failure.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("parse envelope: %w", err)
	}

	var wm wireMsg
	if err := json.Unmarshal(w.Msg, &wm); err != nil {
		return fmt.Errorf("parse msg: %w", err)
	}

	var args Object
	if wm.Args != nil {
		if err := args.UnmarshalJSON(wm.Args); err != nil {
			return fmt.Errorf("parse args: %w", err)
		}
	} else {
		args = Object{}
	}

	nonce, err := base64.StdEncoding.DecodeString(wm.Nonce)
	if err != nil {
		return fmt.Errorf("parse nonce: %w", err)
	}
	if len(nonce) != NonceSize {
		return fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}

	sig, err := base64.StdEncoding.DecodeString(w.Signature)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}

	e.Msg = Msg{
		Command:   wm.Command,
		Args:      args,
		Nonce:     nonce,
		Timestamp: wm.Timestamp,
	}
	e.Signature = sig
	return nil
}
