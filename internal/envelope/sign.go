package envelope

import (
	"crypto/ed25519"
)

// ErrBadSignature is returned by Verify when the signature does not match
// the canonical bytes under the given public key.
type ErrBadSignature struct {
	Code string
}

func (e *ErrBadSignature) Error() string {
	return "signature verification failed"
}

// Sign canonicalizes msg and returns an Ed25519 signature over the result.
// priv must be a 64-byte ed25519.PrivateKey. The standard library's
// ed25519 implementation is used rather than a third-party one: it is
// constant-time, audited, and is the same primitive sigstore/cosign-style
// tooling in this ecosystem builds on directly.
func Sign(priv ed25519.PrivateKey, msg Object) ([]byte, error) {
	canon, err := Canonicalize(msg)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, canon), nil
}

// Verify canonicalizes msg and checks sig against it under pub. A non-nil
// error is always *ErrBadSignature (or a canonicalization failure from a
// malformed msg, which Verify surfaces unchanged so callers can distinguish
// "malformed" from "bad signature").
func Verify(pub ed25519.PublicKey, msg Object, sig []byte) error {
	canon, err := Canonicalize(msg)
	if err != nil {
		return err
	}
	if len(pub) != ed25519.PublicKeySize {
		return &ErrBadSignature{Code: "E_BAD_SIGNATURE"}
	}
	if len(sig) != ed25519.SignatureSize {
		return &ErrBadSignature{Code: "E_BAD_SIGNATURE"}
	}
	if !ed25519.Verify(pub, canon, sig) {
		return &ErrBadSignature{Code: "E_BAD_SIGNATURE"}
	}
	return nil
}

// VerifyDetached is Verify over pre-canonicalized bytes, for callers that
// already hold the canonical form.
func VerifyDetached(pub ed25519.PublicKey, canon []byte, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return &ErrBadSignature{Code: "E_BAD_SIGNATURE"}
	}
	if !ed25519.Verify(pub, canon, sig) {
		return &ErrBadSignature{Code: "E_BAD_SIGNATURE"}
	}
	return nil
}
