// Package schema loads the declarative policy schema from a CUE file and
// exposes typed, validated KeySchema entries: one per recognized policy
// key, carrying its value shape, allowed set or range, and runtime/reboot
// classification.
package schema

import (
	"fmt"

	"cuelang.org/go/cue/token"

	"github.com/controlbus/policyd/internal/envelope"
)

// Classification tags a key as applied immediately or staged for next boot.
type Classification string

const (
	// Runtime keys are merged into active policy immediately and an
	// effector is invoked to realize the change in the running system.
	Runtime Classification = "runtime"
	// Reboot keys are merged into pending policy only; they take effect
	// after the boot applier promotes them.
	Reboot Classification = "reboot"
)

// Kind is the declared value shape for a key.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
)

// KeySchema is the compiled, typed description of one recognized policy
// key.
type KeySchema struct {
	Name           string
	Kind           Kind
	Classification Classification

	// AllowedStrings, if non-nil, is the closed set of acceptable String
	// values. Nil means "any string of Kind string is acceptable" (no
	// enumerated set declared).
	AllowedStrings map[string]struct{}

	// IntRange, if non-nil, bounds an Int value inclusive at both ends.
	IntRange *IntRange
}

// IntRange is an inclusive [Min, Max] bound for an Int-kind key.
type IntRange struct {
	Min, Max int64
}

// Schema is the compiled set of recognized keys, keyed by name. It is the
// single source of truth for what keys exist: keys absent from Schema are
// rejected by Validate.
type Schema struct {
	Keys map[string]*KeySchema

	// Hash is a content hash of the loaded CUE source, recorded in the
	// daemon's status document for operators to detect a schema/binary
	// mismatch across restarts. Observability only; does not affect
	// validation semantics.
	Hash string
}

// LoadError reports a schema compilation failure with an optional CUE
// source position.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrUnknownKey is returned by Validate when args references a key absent
// from the schema.
type ErrUnknownKey struct {
	Key string
}

func (e *ErrUnknownKey) Error() string { return fmt.Sprintf("unknown key %q", e.Key) }

// ErrInvalidValue is returned by Validate when a value does not match its
// key's declared type or allowed set/range.
type ErrInvalidValue struct {
	Key    string
	Reason string
}

func (e *ErrInvalidValue) Error() string {
	return fmt.Sprintf("invalid value for key %q: %s", e.Key, e.Reason)
}

// Validate checks one (key, value) pair against the schema. On success it
// returns the key's KeySchema so the caller can classify it without a
// second lookup.
func (s *Schema) Validate(key string, value envelope.Value) (*KeySchema, error) {
	ks, ok := s.Keys[key]
	if !ok {
		return nil, &ErrUnknownKey{Key: key}
	}

	switch ks.Kind {
	case KindString:
		sv, ok := value.(envelope.String)
		if !ok {
			return nil, &ErrInvalidValue{Key: key, Reason: "expected a string value"}
		}
		if ks.AllowedStrings != nil {
			if _, allowed := ks.AllowedStrings[string(sv)]; !allowed {
				return nil, &ErrInvalidValue{Key: key, Reason: fmt.Sprintf("%q is not in the allowed set", sv)}
			}
		}
	case KindInt:
		iv, ok := value.(envelope.Int)
		if !ok {
			return nil, &ErrInvalidValue{Key: key, Reason: "expected an integer value"}
		}
		if ks.IntRange != nil {
			if int64(iv) < ks.IntRange.Min || int64(iv) > ks.IntRange.Max {
				return nil, &ErrInvalidValue{Key: key, Reason: fmt.Sprintf("%d out of range [%d,%d]", iv, ks.IntRange.Min, ks.IntRange.Max)}
			}
		}
	case KindBool:
		if _, ok := value.(envelope.Bool); !ok {
			return nil, &ErrInvalidValue{Key: key, Reason: "expected a boolean value"}
		}
	default:
		return nil, &ErrInvalidValue{Key: key, Reason: fmt.Sprintf("unrecognized declared kind %q", ks.Kind)}
	}

	return ks, nil
}
