package cli

import (
	"strconv"

	"github.com/controlbus/policyd/internal/envelope"
)

// parseScalar interprets a bare command-line VALUE as the narrowest
// envelope.Value it matches: "true"/"false" as Bool, a plain integer as
// Int, anything else as String. This lets `set` accept typed values
// without requiring JSON-quoting on the command line, while `apply
// --policy-file` (JSON input) already carries exact types via
// envelope.Object's own UnmarshalJSON.
func parseScalar(raw string) envelope.Value {
	switch raw {
	case "true":
		return envelope.Bool(true)
	case "false":
		return envelope.Bool(false)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return envelope.Int(n)
	}
	return envelope.String(raw)
}
