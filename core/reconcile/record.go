package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"index-checker/core/utils"

	"github.com/goccy/go-json"
)

// Record is one instance of a model read from either the authoritative store
// or the index. Attributes may be set until the record is frozen.
type Record struct {
	model   *ModelDescriptor
	attrs   map[string]any
	uid     string
	version string
	frozen  bool
}

type recordOptions struct {
	versionAttr string
}

// RecordOption customizes NewRecord.
type RecordOption func(*recordOptions)

// WithVersion appends the value of attr to the uid. Used by models that index
// every version of the same logical entity.
func WithVersion(attr string) RecordOption {
	return func(o *recordOptions) {
		o.versionAttr = strings.ToLower(attr)
	}
}

// NewRecord builds a record from a store row or an index document. Attribute
// names are lowercased. The primary key must be present.
func NewRecord(model *ModelDescriptor, attrs map[string]any, opts ...RecordOption) (*Record, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: record without model", ErrConfiguration)
	}

	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := &Record{
		model: model,
		attrs: make(map[string]any, len(attrs)),
	}
	for k, v := range attrs {
		r.attrs[strings.ToLower(k)] = v
	}

	pk := CanonicalString(r.attrs[model.PrimaryKey()])
	if pk == "" {
		return nil, fmt.Errorf("record of %s has no value for primary key %s", model.Name(), model.PrimaryKey())
	}

	r.uid = model.Name() + "_PK_" + pk
	if o.versionAttr != "" {
		if v := CanonicalString(r.attrs[o.versionAttr]); v != "" {
			r.version = v
			r.uid += "_V_" + v
		}
	}
	return r, nil
}

// Model returns the owning model descriptor.
func (r *Record) Model() *ModelDescriptor { return r.model }

// UID returns the deterministic unique identifier.
func (r *Record) UID() string { return r.uid }

// PrimaryKey returns the primary key in canonical form.
func (r *Record) PrimaryKey() string {
	return CanonicalString(r.attrs[r.model.PrimaryKey()])
}

// Version returns the version discriminator, empty when none is configured.
func (r *Record) Version() string { return r.version }

// CompanyID returns the owning company, or 0 when the model is not company scoped.
func (r *Record) CompanyID() int64 {
	return utils.ToInt64(r.attrs[AttrCompanyID])
}

// GroupID returns the owning group and whether the record carries one.
func (r *Record) GroupID() (int64, bool) {
	v, ok := r.attrs[AttrGroupID]
	if !ok || v == nil {
		return 0, false
	}
	return utils.ToInt64(v), true
}

// Status returns the workflow status and whether the record carries one.
func (r *Record) Status() (int, bool) {
	v, ok := r.attrs[AttrStatus]
	if !ok || v == nil {
		return 0, false
	}
	return utils.ToInt(v), true
}

// Get returns an attribute value; absent attributes read as nil.
func (r *Record) Get(attr string) any {
	return r.attrs[strings.ToLower(attr)]
}

// Has reports whether the attribute is present, even with a nil value.
func (r *Record) Has(attr string) bool {
	_, ok := r.attrs[strings.ToLower(attr)]
	return ok
}

// Set assigns an attribute. It fails once the record is frozen.
func (r *Record) Set(attr string, value any) error {
	if r.frozen {
		return fmt.Errorf("%w: %s", ErrRecordFrozen, r.uid)
	}
	r.attrs[strings.ToLower(attr)] = value
	return nil
}

// Delete removes an attribute. It fails once the record is frozen.
func (r *Record) Delete(attr string) error {
	if r.frozen {
		return fmt.Errorf("%w: %s", ErrRecordFrozen, r.uid)
	}
	delete(r.attrs, strings.ToLower(attr))
	return nil
}

// Freeze makes the record read-only.
func (r *Record) Freeze() { r.frozen = true }

// Frozen reports whether Freeze was called.
func (r *Record) Frozen() bool { return r.frozen }

// Attributes returns a copy of the attribute mapping.
func (r *Record) Attributes() map[string]any {
	out := make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// Names returns the attribute names in sorted order.
func (r *Record) Names() []string {
	names := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Signature returns the identity of the record over the key attributes. Two
// records with equal signatures represent the same logical entity. With no
// key attributes the uid is used.
func (r *Record) Signature(keyAttributes []string, ignoreCase bool) string {
	if len(keyAttributes) == 0 {
		return r.uid
	}
	parts := make([]string, len(keyAttributes))
	for i, attr := range keyAttributes {
		parts[i] = normalize(r.attrs[strings.ToLower(attr)], ignoreCase).key()
	}
	return strings.Join(parts, "\x1f")
}

func (r *Record) String() string {
	var b strings.Builder
	b.WriteString(r.uid)
	for _, attr := range r.model.Attributes() {
		if v, ok := r.attrs[attr]; ok {
			b.WriteString(" ")
			b.WriteString(attr)
			b.WriteString("=")
			b.WriteString(CanonicalString(v))
		}
	}
	return b.String()
}

type recordJSON struct {
	UID        string            `json:"uid"`
	Model      string            `json:"model"`
	Attributes map[string]string `json:"attributes"`
}

// MarshalJSON renders the tracked attributes in canonical form.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		UID:        r.uid,
		Model:      r.model.Name(),
		Attributes: make(map[string]string, len(r.attrs)),
	}
	for k, v := range r.attrs {
		out.Attributes[k] = CanonicalString(v)
	}
	return json.Marshal(out)
}
