package index

import (
	"sort"

	"index-checker/core/reconcile"

	"github.com/goccy/go-json"
)

// Fields present in every document regardless of the model.
const (
	FieldEntryClassName = "entryClassName"
	FieldUID            = "uid"
)

// hit is one document of a search, scroll or count response.
type hit struct {
	ID     string         `json:"_id"`
	Source map[string]any `json:"_source"`
	Sort   []any          `json:"sort,omitempty"`
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id,omitempty"`
	Hits     struct {
		Hits []hit `json:"hits"`
	} `json:"hits"`
}

// mapping translates between index fields and tracked attributes for one request.
type mapping struct {
	model   *reconcile.ModelDescriptor
	classes map[string]struct{}
	// fields maps an index field to the attributes read from it.
	fields  map[string][]string
	version string
}

func newMapping(req reconcile.IndexRequest) *mapping {
	m := &mapping{
		model:   req.Model,
		classes: map[string]struct{}{req.Model.Name(): {}},
		fields:  make(map[string][]string),
	}
	for _, name := range req.RelatedModels {
		m.classes[name] = struct{}{}
	}

	policy := req.Policy
	if policy == nil {
		policy = &reconcile.MatchPolicy{}
	}
	m.version = policy.VersionAttribute

	attrs := []string{req.Model.PrimaryKey(), reconcile.AttrCompanyID, reconcile.AttrGroupID}
	attrs = append(attrs, req.Attributes...)
	if m.version != "" {
		attrs = append(attrs, m.version)
	}
	seen := make(map[string]struct{}, len(attrs))
	for _, attr := range attrs {
		if _, ok := seen[attr]; ok {
			continue
		}
		seen[attr] = struct{}{}
		field := policy.IndexFieldName(req.Model, attr)
		m.fields[field] = append(m.fields[field], attr)
	}
	return m
}

// sourceFields returns the index fields to fetch, sorted.
func (m *mapping) sourceFields() []string {
	out := make([]string, 0, len(m.fields)+1)
	for field := range m.fields {
		out = append(out, field)
	}
	out = append(out, FieldEntryClassName)
	sort.Strings(out)
	return out
}

func (m *mapping) classNames() []string {
	out := make([]string, 0, len(m.classes))
	for name := range m.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *mapping) field(attr string) string {
	for field, attrs := range m.fields {
		for _, a := range attrs {
			if a == attr {
				return field
			}
		}
	}
	return attr
}

// record converts a document into a record of the request's model.
// Absent fields read as nil.
func (m *mapping) record(source map[string]any) (*reconcile.Record, error) {
	attrs := make(map[string]any, len(m.fields))
	for field, names := range m.fields {
		v := plain(source[field])
		for _, attr := range names {
			attrs[attr] = v
		}
	}
	var opts []reconcile.RecordOption
	if m.version != "" {
		opts = append(opts, reconcile.WithVersion(m.version))
	}
	return reconcile.NewRecord(m.model, attrs, opts...)
}

// plain replaces decoded JSON numbers with their literal text so integers
// keep full precision.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
