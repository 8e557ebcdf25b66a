package orchestrator

import (
	"fmt"
	"strings"
)

// checkIdentifier reports why id cannot be part of a push-publish entry id.
// Entry ids travel as one control API path segment, so separators, escapes
// and dot segments are refused instead of being rewritten.
func checkIdentifier(field, id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%s required", field)
	case strings.ContainsAny(id, "/\\?#%"):
		return fmt.Errorf("%s %q contains a reserved character", field, id)
	case strings.Contains(id, ".."):
		return fmt.Errorf("%s %q contains a dot segment", field, id)
	}
	for _, r := range id {
		if r <= ' ' || r == 0x7f {
			return fmt.Errorf("%s %q contains whitespace or control characters", field, id)
		}
	}
	return nil
}
