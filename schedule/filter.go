package schedule

import (
	"strings"

	"github.com/Rival420/donwatcher/beacon"
	"github.com/Rival420/donwatcher/errors"
)

// Filter is a parsed target expression: key=value terms joined by spaces,
// all of which must match (AND). The grammar is deliberately small.
type Filter struct {
	Terms []Term
}

// Term is one key=value condition.
type Term struct {
	Key   string
	Value string
}

// Filterable registry attributes.
var filterKeys = map[string]bool{
	"hostname": true,
	"domain":   true,
	"os":       true,
	"status":   true,
}

// ParseFilter parses a target filter expression. A malformed expression is a
// target resolution failure, distinct from a filter that merely matches
// nothing.
func ParseFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.Wrap(errors.ErrTargetResolution, "empty filter expression")
	}

	f := &Filter{}
	for _, raw := range strings.Fields(expr) {
		key, value, found := strings.Cut(raw, "=")
		if !found || key == "" || value == "" {
			return nil, errors.Wrapf(errors.ErrTargetResolution, "malformed filter term %q", raw)
		}
		key = strings.ToLower(key)
		if !filterKeys[key] {
			return nil, errors.Wrapf(errors.ErrTargetResolution, "unknown filter key %q", key)
		}
		f.Terms = append(f.Terms, Term{Key: key, Value: value})
	}
	return f, nil
}

// Match evaluates the filter against a beacon and its computed status.
// String comparisons are case-insensitive.
func (f *Filter) Match(b *beacon.Beacon, status beacon.Status) bool {
	for _, term := range f.Terms {
		var actual string
		switch term.Key {
		case "hostname":
			actual = b.Hostname
		case "domain":
			actual = b.Domain
		case "os":
			actual = b.OS
		case "status":
			actual = string(status)
		}
		if !strings.EqualFold(actual, term.Value) {
			return false
		}
	}
	return true
}
