package reconcile

import (
	"fmt"
	"strings"
)

// OutputModes selects which buckets a Comparison keeps. Counts are always filled.
type OutputModes uint8

const (
	OutputExact OutputModes = 1 << iota
	OutputNotExact
	OutputOnlyAuthoritative
	OutputOnlyIndex

	OutputAll = OutputExact | OutputNotExact | OutputOnlyAuthoritative | OutputOnlyIndex

	// OutputDiscrepancies keeps everything except exact matches.
	OutputDiscrepancies = OutputNotExact | OutputOnlyAuthoritative | OutputOnlyIndex
)

var outputModeNames = []struct {
	mode OutputModes
	name string
}{
	{OutputExact, "exact"},
	{OutputNotExact, "not-exact"},
	{OutputOnlyAuthoritative, "only-authoritative"},
	{OutputOnlyIndex, "only-index"},
}

// Has reports whether every flag of m is set.
func (o OutputModes) Has(m OutputModes) bool { return o&m == m }

func (o OutputModes) String() string {
	var names []string
	for _, n := range outputModeNames {
		if o.Has(n.mode) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseOutputModes parses a comma separated list such as
// "not-exact,only-index". "all" selects every bucket.
func ParseOutputModes(s string) (OutputModes, error) {
	var modes OutputModes
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if part == "all" {
			modes |= OutputAll
			continue
		}
		found := false
		for _, n := range outputModeNames {
			if n.name == part {
				modes |= n.mode
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown output mode %q", part)
		}
	}
	if modes == 0 {
		return 0, fmt.Errorf("no output mode selected")
	}
	return modes, nil
}

// IndexUnavailablePolicy decides what a unit does when the index cannot serve a model.
type IndexUnavailablePolicy string

const (
	// IndexUnavailableEmpty treats the index set as empty.
	IndexUnavailableEmpty IndexUnavailablePolicy = "empty"
	// IndexUnavailableError turns the unit into an error Comparison.
	IndexUnavailableError IndexUnavailablePolicy = "error"
)

// Valid reports whether p is a known policy.
func (p IndexUnavailablePolicy) Valid() bool {
	return p == IndexUnavailableEmpty || p == IndexUnavailableError
}

// RelatedData folds attributes of a related table into the records of a model.
type RelatedData struct {
	// Table is the related table.
	Table string `json:"table" yaml:"table"`
	// JoinAttribute is the column of the related table holding the owner's primary key.
	JoinAttribute string `json:"join_attribute" yaml:"join_attribute"`
	// Attributes are copied onto the owner record, prefixed with Prefix.
	Attributes []string `json:"attributes" yaml:"attributes"`
	// Prefix is prepended to folded attribute names.
	Prefix string `json:"prefix,omitempty" yaml:"prefix"`
	// OrderBy picks the row kept when several relate to one owner (first wins).
	OrderBy string `json:"order_by,omitempty" yaml:"order_by"`
	// Filter drops owner records whose related row does not match.
	Filter string `json:"filter,omitempty" yaml:"filter"`
}

// MatchPolicy is the resolved per-model configuration used by a unit.
type MatchPolicy struct {
	// KeyAttributes decide whether two records are the same entity.
	KeyAttributes []string
	// ExactAttributes are compared with strict equality.
	ExactAttributes []string
	// AttributesToQuery are fetched from the index in addition to the exact attributes.
	AttributesToQuery []string
	// IgnoreCase compares strings case-insensitively.
	IgnoreCase bool
	// IndexFieldNames maps tracked attribute names to index field names.
	// The "pk" entry is used for the primary key when no explicit mapping exists.
	IndexFieldNames map[string]string
	// RelatedData is folded into authoritative records before comparison.
	RelatedData []RelatedData
	// RelatedModels are models whose index documents belong to this model.
	RelatedModels []string
	// VersionAttribute enables one record per version when set.
	VersionAttribute string
	// OnIndexUnavailable is the outcome when the index cannot serve the model.
	OnIndexUnavailable IndexUnavailablePolicy
	// Enrich enables permission enrichment of authoritative records.
	Enrich bool
}

// IndexFieldName translates a tracked attribute into the index field name.
func (p *MatchPolicy) IndexFieldName(model *ModelDescriptor, attr string) string {
	if name, ok := p.IndexFieldNames[attr]; ok && name != "" {
		return name
	}
	if model != nil && attr == model.PrimaryKey() {
		if name, ok := p.IndexFieldNames["pk"]; ok && name != "" {
			return name
		}
	}
	return attr
}

// QueriedAttributes returns the union of exact, key and queried attributes,
// exact attributes first.
func (p *MatchPolicy) QueriedAttributes() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range [][]string{p.ExactAttributes, p.KeyAttributes, p.AttributesToQuery} {
		for _, attr := range list {
			if _, ok := seen[attr]; ok {
				continue
			}
			seen[attr] = struct{}{}
			out = append(out, attr)
		}
	}
	return out
}

// RecordAttributes returns the attributes the records of model carry once a
// unit has enriched and folded them: the tracked attributes, role_ids when
// enrichment is on and the prefixed attributes of every related data entry.
func (p *MatchPolicy) RecordAttributes(model *ModelDescriptor) map[string]struct{} {
	out := make(map[string]struct{})
	for _, attr := range model.Attributes() {
		out[attr] = struct{}{}
	}
	if p.Enrich {
		out[AttrRoleIDs] = struct{}{}
	}
	for _, rd := range p.RelatedData {
		for _, attr := range rd.Attributes {
			out[rd.Prefix+strings.ToLower(strings.TrimSpace(attr))] = struct{}{}
		}
	}
	return out
}

// Validate checks the policy against the model it applies to. Key and exact
// attributes must be among RecordAttributes.
func (p *MatchPolicy) Validate(model *ModelDescriptor) error {
	if len(p.ExactAttributes) == 0 {
		return fmt.Errorf("%w: model %s has no exact attributes", ErrConfiguration, model.Name())
	}
	available := p.RecordAttributes(model)
	for _, list := range []struct {
		kind  string
		attrs []string
	}{{"key", p.KeyAttributes}, {"exact", p.ExactAttributes}} {
		for _, attr := range list.attrs {
			if _, ok := available[attr]; !ok {
				return fmt.Errorf("%w: model %s: %s attribute %q is neither tracked, enriched nor folded", ErrConfiguration, model.Name(), list.kind, attr)
			}
		}
	}
	if p.OnIndexUnavailable != "" && !p.OnIndexUnavailable.Valid() {
		return fmt.Errorf("%w: model %s: unknown index unavailable policy %q", ErrConfiguration, model.Name(), p.OnIndexUnavailable)
	}
	for _, rd := range p.RelatedData {
		if rd.Table == "" || rd.JoinAttribute == "" {
			return fmt.Errorf("%w: model %s: related data needs a table and a join attribute", ErrConfiguration, model.Name())
		}
		if _, err := ParseFilter(rd.Filter); err != nil {
			return fmt.Errorf("%w: model %s: %v", ErrConfiguration, model.Name(), err)
		}
	}
	return nil
}
