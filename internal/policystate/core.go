package policystate

import (
	"fmt"
	"sync"

	"github.com/controlbus/policyd/internal/effector"
	"github.com/controlbus/policyd/internal/envelope"
	"github.com/controlbus/policyd/internal/schema"
)

// FailedKey reports one key's validation or effector failure within an
// otherwise-processed envelope. Reason is a stable identifier a client can
// branch on ("UnknownKey", "InvalidValue", "EffectorFailed"); Detail
// carries the human-readable text for logs and display.
type FailedKey struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Result is the structured outcome of SetPolicy.
type Result struct {
	Applied []string    `json:"applied"`
	Staged  []string    `json:"staged"`
	Failed  []FailedKey `json:"failed"`
}

// ErrRejectedByPolicy is returned when at least one (key, value) pair in
// the envelope fails schema validation: no mutation is made and the
// caller should surface per-key reasons.
type ErrRejectedByPolicy struct {
	Reasons []FailedKey
}

func (e *ErrRejectedByPolicy) Error() string {
	return fmt.Sprintf("rejected by policy: %d key(s) failed validation", len(e.Reasons))
}

// Core holds the in-memory active/pending policy maps plus the backing
// file paths, schema, and effector registry. All state-mutating access
// must go through SetPolicy, which serializes writers with an internal
// mutex; Snapshot is safe to call concurrently with SetPolicy and always
// observes a consistent point-in-time copy.
type Core struct {
	mu sync.RWMutex

	activePath  string
	pendingPath string

	active  *Document
	pending *Document

	schema    *schema.Schema
	effectors *effector.Registry
}

// New constructs a Core from already-loaded active/pending documents. Use
// Open to load both from disk.
func New(activePath, pendingPath string, active, pending *Document, sch *schema.Schema, effectors *effector.Registry) *Core {
	return &Core{
		activePath:  activePath,
		pendingPath: pendingPath,
		active:      active,
		pending:     pending,
		schema:      sch,
		effectors:   effectors,
	}
}

// Open loads the active and pending documents from disk, creating empty
// ones in memory if absent, and constructs a Core.
func Open(activePath, pendingPath string, sch *schema.Schema, effectors *effector.Registry) (*Core, error) {
	active, err := LoadDocument(activePath)
	if err != nil {
		return nil, fmt.Errorf("load active document: %w", err)
	}
	pending, err := LoadDocument(pendingPath)
	if err != nil {
		return nil, fmt.Errorf("load pending document: %w", err)
	}
	return New(activePath, pendingPath, active, pending, sch, effectors), nil
}

// Snapshot is a read-only point-in-time view for status reporting.
type Snapshot struct {
	Active  envelope.Object
	Pending envelope.Object
}

// Snapshot returns a copy of the current active and pending maps. Safe to
// call concurrently with SetPolicy.
func (c *Core) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	active := make(envelope.Object, len(c.active.Keys))
	for k, v := range c.active.Keys {
		active[k] = v
	}
	pending := make(envelope.Object, len(c.pending.Keys))
	for k, v := range c.pending.Keys {
		pending[k] = v
	}
	return Snapshot{Active: active, Pending: pending}
}

// SetPolicy validates every (key, value) in args against the schema,
// classifies validated keys into runtime vs. reboot partitions, applies
// runtime keys to active policy (invoking the effector for each, with
// per-key rollback on effector failure), stages reboot keys into pending
// policy, and persists both documents atomically.
//
// If any key fails validation, no mutation is made at all and the error
// is *ErrRejectedByPolicy carrying every failing key's reason — not just
// the first.
func (c *Core) SetPolicy(args envelope.Object) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type validated struct {
		key   string
		value envelope.Value
		ks    *schema.KeySchema
	}

	var (
		ok       []validated
		rejected []FailedKey
	)

	for key, val := range args {
		ks, err := c.schema.Validate(key, val)
		if err != nil {
			rejected = append(rejected, FailedKey{Key: key, Reason: validationReason(err), Detail: err.Error()})
			continue
		}
		ok = append(ok, validated{key: key, value: val, ks: ks})
	}

	if len(rejected) > 0 {
		return nil, &ErrRejectedByPolicy{Reasons: rejected}
	}

	workingActive := c.active.Clone()
	workingPending := c.pending.Clone()

	result := &Result{}

	for _, v := range ok {
		switch v.ks.Classification {
		case schema.Runtime:
			prior, hadPrior := workingActive.Keys[v.key]
			workingActive.Keys[v.key] = v.value

			if err := c.effectors.Apply(v.key, v.value); err != nil {
				if hadPrior {
					workingActive.Keys[v.key] = prior
				} else {
					delete(workingActive.Keys, v.key)
				}
				result.Failed = append(result.Failed, FailedKey{Key: v.key, Reason: "EffectorFailed", Detail: err.Error()})
				continue
			}
			result.Applied = append(result.Applied, v.key)

		case schema.Reboot:
			workingPending.Keys[v.key] = v.value
			result.Staged = append(result.Staged, v.key)

		default:
			result.Failed = append(result.Failed, FailedKey{Key: v.key, Reason: "UnrecognizedClassification"})
		}
	}

	if err := workingActive.Save(c.activePath); err != nil {
		return nil, fmt.Errorf("persist active document: %w", err)
	}
	if err := workingPending.Save(c.pendingPath); err != nil {
		return nil, fmt.Errorf("persist pending document: %w", err)
	}

	c.active = workingActive
	c.pending = workingPending

	return result, nil
}

// validationReason maps a schema validation error to the stable identifier
// clients and logs key off of, rather than the human-readable message.
func validationReason(err error) string {
	switch err.(type) {
	case *schema.ErrUnknownKey:
		return "UnknownKey"
	case *schema.ErrInvalidValue:
		return "InvalidValue"
	default:
		return "InvalidValue"
	}
}
