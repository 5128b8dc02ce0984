// Package policystate implements the policy core: schema validation,
// runtime/reboot classification, active/pending state, atomic persistence,
// and effector invocation.
package policystate

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/controlbus/policyd/internal/atomicfile"
	"github.com/controlbus/policyd/internal/envelope"
)

// Document is the on-disk shape of the active or pending policy file: a
// plain canonical-JSON object mapping key to value. It is intentionally
// not a SQLite row: the active/pending format needs to be a
// directly-inspectable, atomically-written file, not a database.
type Document struct {
	Keys envelope.Object
}

// Perm is the file mode for active/pending documents: owner read/write
// only, consistent with the private-key file mode.
const Perm = 0o600

// LoadDocument reads a Document from path. A missing file is treated as an
// empty document, not an error.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Document{Keys: envelope.Object{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc.Keys); err != nil {
		return nil, fmt.Errorf("parse document %s: %w", path, err)
	}
	if doc.Keys == nil {
		doc.Keys = envelope.Object{}
	}
	return &doc, nil
}

// Save persists doc atomically to path (write-temp+fsync+rename).
func (d *Document) Save(path string) error {
	data, err := envelope.Canonicalize(d.Keys)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return atomicfile.Write(path, data, Perm)
}

// Clone returns a deep-enough copy of d's key map so callers can mutate a
// working copy and only commit it via Save on success.
func (d *Document) Clone() *Document {
	cp := make(envelope.Object, len(d.Keys))
	for k, v := range d.Keys {
		cp[k] = v
	}
	return &Document{Keys: cp}
}
