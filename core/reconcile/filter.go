package reconcile

import (
	"fmt"
	"strings"
)

// Condition is a single attribute test of a Filter.
type Condition struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
	Negate    bool   `json:"negate,omitempty"`
}

// Filter restricts which records of a model are in scope. A record passes
// when any of its conditions holds.
type Filter struct {
	Conditions []Condition `json:"conditions"`
}

// ParseFilter parses expressions of the form "status=0+status=8" or
// "type!=folder". Conditions are joined with '+' and ORed. An empty
// expression yields a nil filter.
func ParseFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	f := &Filter{}
	for _, part := range strings.Split(expr, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("filter %q: empty condition", expr)
		}

		cond := Condition{}
		var attr, value string
		if i := strings.Index(part, "!="); i >= 0 {
			attr, value = part[:i], part[i+2:]
			cond.Negate = true
		} else if i := strings.Index(part, "="); i >= 0 {
			attr, value = part[:i], part[i+1:]
		} else {
			return nil, fmt.Errorf("filter %q: condition %q has no operator", expr, part)
		}

		cond.Attribute = strings.ToLower(strings.TrimSpace(attr))
		cond.Value = strings.TrimSpace(value)
		if cond.Attribute == "" {
			return nil, fmt.Errorf("filter %q: condition %q has no attribute", expr, part)
		}
		f.Conditions = append(f.Conditions, cond)
	}
	return f, nil
}

// Attributes returns the distinct attributes referenced by the filter.
func (f *Filter) Attributes() []string {
	if f == nil {
		return nil
	}
	var out []string
	seen := make(map[string]struct{}, len(f.Conditions))
	for _, c := range f.Conditions {
		if _, ok := seen[c.Attribute]; ok {
			continue
		}
		seen[c.Attribute] = struct{}{}
		out = append(out, c.Attribute)
	}
	return out
}

// Matches evaluates the filter against an attribute mapping. A nil filter
// matches everything.
func (f *Filter) Matches(attrs map[string]any) bool {
	if f == nil || len(f.Conditions) == 0 {
		return true
	}
	for _, c := range f.Conditions {
		equal := CanonicalString(attrs[c.Attribute]) == c.Value
		if equal != c.Negate {
			return true
		}
	}
	return false
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, len(f.Conditions))
	for i, c := range f.Conditions {
		op := "="
		if c.Negate {
			op = "!="
		}
		parts[i] = c.Attribute + op + c.Value
	}
	return strings.Join(parts, "+")
}
