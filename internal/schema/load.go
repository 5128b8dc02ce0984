package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Load reads the policy schema from a single CUE file and compiles it into
// a Schema. The file is expected to declare a top-level `key` struct whose
// fields are key names, each with a `kind` ("string"|"int"|"bool"), a
// `classification` ("runtime"|"reboot"), and an optional `allowed` list or
// `range` bound, e.g.:
//
//	key: radio_enabled: {
//		kind:           "bool"
//		classification: "runtime"
//	}
//	key: log_level: {
//		kind:           "string"
//		classification: "runtime"
//		allowed:        ["debug", "info", "warn", "error"]
//	}
//	key: boot_mode: {
//		kind:           "string"
//		classification: "reboot"
//		allowed:        ["normal", "recovery"]
//	}
//
// Keys are looked up by label under the "key" struct rather than decoded
// into a Go struct directly, so a schema file can declare fields in any
// order and new optional attributes don't require a loader change.
func Load(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"./" + base}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Field: "schema", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Field: "schema", Message: fmt.Sprintf("loading CUE file: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Field: "schema", Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	keysVal := value.LookupPath(cue.ParsePath("key"))
	if !keysVal.Exists() {
		return nil, &LoadError{Field: "key", Message: "schema file declares no top-level \"key\" struct"}
	}

	iter, err := keysVal.Fields()
	if err != nil {
		return nil, &LoadError{Field: "key", Message: fmt.Sprintf("iterating keys: %v", err)}
	}

	s := &Schema{Keys: make(map[string]*KeySchema)}
	for iter.Next() {
		name := iter.Label()
		ks, err := compileKey(name, iter.Value())
		if err != nil {
			return nil, err
		}
		s.Keys[name] = ks
	}

	if len(s.Keys) == 0 {
		return nil, &LoadError{Field: "key", Message: "schema file declares zero keys"}
	}

	sum := sha256.Sum256(raw)
	s.Hash = hex.EncodeToString(sum[:])

	return s, nil
}

func compileKey(name string, v cue.Value) (*KeySchema, error) {
	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return nil, &LoadError{Field: name + ".kind", Message: "kind is required", Pos: v.Pos()}
	}
	kindStr, err := kindVal.String()
	if err != nil {
		return nil, &LoadError{Field: name + ".kind", Message: err.Error(), Pos: v.Pos()}
	}

	var kind Kind
	switch kindStr {
	case "string":
		kind = KindString
	case "int":
		kind = KindInt
	case "bool":
		kind = KindBool
	default:
		return nil, &LoadError{Field: name + ".kind", Message: fmt.Sprintf("unrecognized kind %q", kindStr), Pos: v.Pos()}
	}

	classVal := v.LookupPath(cue.ParsePath("classification"))
	if !classVal.Exists() {
		return nil, &LoadError{Field: name + ".classification", Message: "classification is required", Pos: v.Pos()}
	}
	classStr, err := classVal.String()
	if err != nil {
		return nil, &LoadError{Field: name + ".classification", Message: err.Error(), Pos: v.Pos()}
	}

	var class Classification
	switch classStr {
	case "runtime":
		class = Runtime
	case "reboot":
		class = Reboot
	default:
		return nil, &LoadError{Field: name + ".classification", Message: fmt.Sprintf("unrecognized classification %q", classStr), Pos: v.Pos()}
	}

	ks := &KeySchema{Name: name, Kind: kind, Classification: class}

	if kind == KindString {
		allowedVal := v.LookupPath(cue.ParsePath("allowed"))
		if allowedVal.Exists() {
			allowedIter, err := allowedVal.List()
			if err != nil {
				return nil, &LoadError{Field: name + ".allowed", Message: err.Error(), Pos: v.Pos()}
			}
			set := make(map[string]struct{})
			for allowedIter.Next() {
				s, err := allowedIter.Value().String()
				if err != nil {
					return nil, &LoadError{Field: name + ".allowed", Message: err.Error(), Pos: v.Pos()}
				}
				set[s] = struct{}{}
			}
			ks.AllowedStrings = set
		}
	}

	if kind == KindInt {
		rangeVal := v.LookupPath(cue.ParsePath("range"))
		if rangeVal.Exists() {
			minVal := rangeVal.LookupPath(cue.ParsePath("min"))
			maxVal := rangeVal.LookupPath(cue.ParsePath("max"))
			min, err := minVal.Int64()
			if err != nil {
				return nil, &LoadError{Field: name + ".range.min", Message: err.Error(), Pos: v.Pos()}
			}
			max, err := maxVal.Int64()
			if err != nil {
				return nil, &LoadError{Field: name + ".range.max", Message: err.Error(), Pos: v.Pos()}
			}
			ks.IntRange = &IntRange{Min: min, Max: max}
		}
	}

	return ks, nil
}
