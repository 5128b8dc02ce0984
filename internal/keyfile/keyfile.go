// Package keyfile manages the on-disk Ed25519 signing key pair: raw
// 32-byte public and private key files, mode 0600, under a mode-0700
// directory. This package only fixes the on-disk format and the
// bootstrap-if-absent / rotate operations the CLI exposes over it.
package keyfile

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
)

// DirMode is the key directory's permission bits: owned by a single user,
// no group or world access.
const DirMode = 0o700

// FileMode is each key file's permission bits: owner read/write only.
const FileMode = 0o600

const (
	privateFileName = "sign_sk"
	publicFileName  = "sign_pk"
)

// ErrAlreadyExists is returned by Bootstrap when a key pair is already
// present.
type ErrAlreadyExists struct {
	Dir string
}

func (e *ErrAlreadyExists) Error() string {
	return fmt.Sprintf("key pair already exists in %s", e.Dir)
}

// Bootstrap creates a new Ed25519 key pair under dir if one is not already
// present. It returns ErrAlreadyExists, which the CLI treats as success
// rather than failure, if both key files already exist.
func Bootstrap(dir string) error {
	privPath := dir + "/" + privateFileName
	pubPath := dir + "/" + publicFileName

	if fileExists(privPath) && fileExists(pubPath) {
		return &ErrAlreadyExists{Dir: dir}
	}

	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.Chmod(dir, DirMode); err != nil {
		return fmt.Errorf("chmod key directory: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	// priv.Seed() is the 32-byte raw private key persisted on disk; the
	// standard library's ed25519.PrivateKey is the 64-byte seed||pubkey
	// form used internally for signing, so it is round-tripped back to
	// that form via ed25519.NewKeyFromSeed on load.
	if err := writeKeyFile(privPath, priv.Seed()); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := writeKeyFile(pubPath, pub); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// Rotate regenerates both key files in place unconditionally, as an
// out-of-band replacement of both files simultaneously.
func Rotate(dir string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := writeKeyFile(dir+"/"+privateFileName, priv.Seed()); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := writeKeyFile(dir+"/"+publicFileName, pub); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// LoadPrivate reads the raw 32-byte seed from dir/sign_sk and expands it
// into an ed25519.PrivateKey. This is the CLI's only use of the key
// directory: the daemon never reads this file, as the control domain
// exclusively owns the private key.
func LoadPrivate(dir string) (ed25519.PrivateKey, error) {
	seed, err := os.ReadFile(dir + "/" + privateFileName)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key file has wrong size: %d", len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// LoadPublic reads the raw 32-byte public key from dir/sign_pk. This is
// the daemon's only use of the key directory: the daemon holds the public
// key read-only.
func LoadPublic(dir string) (ed25519.PublicKey, error) {
	pub, err := os.ReadFile(dir + "/" + publicFileName)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key file has wrong size: %d", len(pub))
	}
	return ed25519.PublicKey(pub), nil
}

func writeKeyFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, FileMode); err != nil {
		return err
	}
	return os.Chmod(path, FileMode)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
