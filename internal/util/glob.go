package util

import (
	"path"
	"strings"
)

// MatchFields reports whether field matches a field pattern as accepted by
// the _mapping/field endpoint: a comma-separated list of names where each
// entry may use path.Match wildcards. "", "*" and "_all" match every field.
func MatchFields(patterns, field string) bool {
	for _, p := range strings.Split(patterns, ",") {
		p = strings.TrimSpace(p)
		switch p {
		case "", "*", "_all":
			return true
		}
		if ok, _ := path.Match(p, field); ok {
			return true
		}
	}
	return false
}
