package policy

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"index-checker/core/reconcile"

	"gopkg.in/yaml.v3"
)

// Names of the fallback entries of the cascade.
const (
	EntryDefault   = "default"
	EntryWorkflow  = "workflowedModel"
	EntryResourced = "resourcedModel"
)

//go:embed default.yaml
var defaultTable []byte

// Capabilities forces capability flags of a model; nil keeps the introspected value.
type Capabilities struct {
	CompanyScoped    *bool `yaml:"company_scoped"`
	GroupScoped      *bool `yaml:"group_scoped"`
	ResourceIdentity *bool `yaml:"resource_identity"`
	Audited          *bool `yaml:"audited"`
	Workflow         *bool `yaml:"workflow"`
}

// Entry is one row of the model table. Unset fields fall through the cascade.
type Entry struct {
	// Model is the qualified model name or one of the fallback entry names.
	Model string `yaml:"model"`

	// Table overrides the backing table name of the model.
	Table string `yaml:"table"`

	// PrimaryKey overrides the introspected primary key.
	PrimaryKey string `yaml:"primary_key"`

	// Attributes are extra columns to track.
	Attributes []string `yaml:"attributes"`

	// Capabilities forces capability flags.
	Capabilities Capabilities `yaml:"capabilities"`

	ExactAttributes   []string                `yaml:"exact_attributes"`
	KeyAttributes     []string                `yaml:"key_attributes"`
	AttributesToQuery []string                `yaml:"attributes_to_query"`
	IndexFieldNames   map[string]string       `yaml:"index_field_names"`
	RelatedData       []reconcile.RelatedData `yaml:"related_data"`
	RelatedModels     []string                `yaml:"related_models"`
	Filter            *string                 `yaml:"filter"`
	IgnoreCase        *bool                   `yaml:"ignore_case"`
	Enrich            *bool                   `yaml:"enrich"`
	VersionAttribute  *string                 `yaml:"version_attribute"`

	// OnIndexUnavailable is "empty" or "error".
	OnIndexUnavailable *string `yaml:"on_index_unavailable"`
}

// Table is the parsed configuration file. It is immutable once parsed.
type Table struct {
	// IgnoreModels are never reconciled.
	IgnoreModels []string `yaml:"ignore_models"`

	// ModelsNotIndexed have no index representation and are never reconciled.
	ModelsNotIndexed []string `yaml:"models_not_indexed"`

	// IndexAllVersions enables per-version records for models with a
	// version attribute.
	IndexAllVersions bool `yaml:"index_all_versions"`

	Models []Entry `yaml:"models"`

	entries map[string]*Entry
}

// Parse decodes a model table. Unknown keys are rejected.
func Parse(data []byte) (*Table, error) {
	var t Table
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: parsing policy table: %v", reconcile.ErrConfiguration, err)
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads a model table from path, or returns the embedded default when
// path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading policy table: %v", reconcile.ErrConfiguration, err)
	}
	return Parse(data)
}

// Default returns the embedded model table.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

func (t *Table) index() error {
	t.entries = make(map[string]*Entry, len(t.Models))
	for i := range t.Models {
		e := &t.Models[i]
		if e.Model == "" {
			return fmt.Errorf("%w: policy entry %d has no model", reconcile.ErrConfiguration, i)
		}
		if _, dup := t.entries[e.Model]; dup {
			return fmt.Errorf("%w: duplicate policy entry %s", reconcile.ErrConfiguration, e.Model)
		}
		if e.OnIndexUnavailable != nil && !reconcile.IndexUnavailablePolicy(*e.OnIndexUnavailable).Valid() {
			return fmt.Errorf("%w: model %s: on_index_unavailable must be empty or error", reconcile.ErrConfiguration, e.Model)
		}
		t.entries[e.Model] = e
	}
	if _, ok := t.entries[EntryDefault]; !ok {
		return fmt.Errorf("%w: policy table has no %q entry", reconcile.ErrConfiguration, EntryDefault)
	}
	return nil
}

// Entry returns the table row of a model. A "#variant" suffix is ignored.
func (t *Table) Entry(model string) (*Entry, bool) {
	if i := strings.IndexByte(model, '#'); i >= 0 {
		model = model[:i]
	}
	e, ok := t.entries[model]
	return e, ok
}

// ModelNames returns the explicitly configured models in table order,
// excluding the fallback entries.
func (t *Table) ModelNames() []string {
	var out []string
	for _, e := range t.Models {
		switch e.Model {
		case EntryDefault, EntryWorkflow, EntryResourced:
			continue
		}
		out = append(out, e.Model)
	}
	return out
}

// Ignored reports whether a model must never be reconciled. An empty name
// is always ignored.
func (t *Table) Ignored(model string) bool {
	if model == "" {
		return true
	}
	return contains(t.IgnoreModels, model) || contains(t.ModelsNotIndexed, model)
}

// NotIndexed reports whether a model has no index representation.
func (t *Table) NotIndexed(model string) bool {
	return contains(t.ModelsNotIndexed, model)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
