package reconcile

import (
	"fmt"
	"strings"
)

// Well-known attribute (column) names used to discover model capabilities.
const (
	AttrCompanyID       = "company_id"
	AttrGroupID         = "group_id"
	AttrResourcePrimKey = "resource_prim_key"
	AttrCreateDate      = "create_date"
	AttrModifiedDate    = "modified_date"
	AttrStatus          = "status"

	// AttrRoleIDs is added by permission enrichment, not read from the table.
	AttrRoleIDs = "role_ids"
)

// ScopeAttribute reports whether attr is one of the well-known attributes
// that only models with the matching capability carry.
func ScopeAttribute(attr string) bool {
	switch attr {
	case AttrCompanyID, AttrGroupID, AttrResourcePrimKey, AttrCreateDate, AttrModifiedDate, AttrStatus:
		return true
	}
	return false
}

// Workflow status values kept by the default workflow filter.
const (
	StatusApproved = 0
	StatusInTrash  = 8
)

// DefaultWorkflowFilter restricts workflow models to approved or trashed records.
var DefaultWorkflowFilter = fmt.Sprintf("%s=%d+%s=%d", AttrStatus, StatusApproved, AttrStatus, StatusInTrash)

// Capabilities are the structural traits of a record type.
type Capabilities struct {
	CompanyScoped    bool `json:"company_scoped"`
	GroupScoped      bool `json:"group_scoped"`
	ResourceIdentity bool `json:"resource_identity"`
	Audited          bool `json:"audited"`
	Workflow         bool `json:"workflow"`
}

// CapabilityOverlay forces individual capability flags; nil leaves the introspected value.
type CapabilityOverlay struct {
	CompanyScoped    *bool
	GroupScoped      *bool
	ResourceIdentity *bool
	Audited          *bool
	Workflow         *bool
}

// Schema is the result of introspecting the table backing a record type.
type Schema struct {
	Table      string
	Columns    []string
	PrimaryKey string
}

// Overlay is the configuration applied on top of the introspected schema.
type Overlay struct {
	// Table overrides the backing table name.
	Table string
	// PrimaryKey overrides the introspected primary key column.
	PrimaryKey string
	// Attributes are extra columns to track. Each must exist in the schema.
	Attributes []string
	// Filter restricts which records are in scope. Empty keeps the default.
	Filter string
	// Capabilities forces capability flags.
	Capabilities CapabilityOverlay
}

// ModelDescriptor describes a record type: its schema and the attributes tracked for it.
// It is immutable once built; use Clone to derive a private copy.
type ModelDescriptor struct {
	name       string
	table      string
	primaryKey string
	attributes []string
	caps       Capabilities
	filter     *Filter
}

// BuildModelDescriptor merges an introspected schema with its configuration overlay.
func BuildModelDescriptor(name string, schema Schema, overlay Overlay) (*ModelDescriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: model name is empty", ErrConfiguration)
	}

	columns := make(map[string]struct{}, len(schema.Columns))
	for _, col := range schema.Columns {
		columns[strings.ToLower(col)] = struct{}{}
	}
	has := func(col string) bool {
		_, ok := columns[col]
		return ok
	}

	pk := strings.ToLower(overlay.PrimaryKey)
	if pk == "" {
		pk = strings.ToLower(schema.PrimaryKey)
	}
	if pk == "" {
		return nil, fmt.Errorf("%w: model %s has no primary key", ErrConfiguration, name)
	}
	if len(columns) > 0 && !has(pk) {
		return nil, fmt.Errorf("%w: model %s primary key %q is not a column", ErrConfiguration, name, pk)
	}

	table := overlay.Table
	if table == "" {
		table = schema.Table
	}
	if table == "" {
		return nil, fmt.Errorf("%w: model %s has no table", ErrConfiguration, name)
	}

	caps := IntrospectCapabilities(schema.Columns).Apply(overlay.Capabilities)

	m := &ModelDescriptor{
		name:       name,
		table:      table,
		primaryKey: pk,
		caps:       caps,
	}

	m.addAttribute(pk)
	if caps.CompanyScoped {
		m.addAttribute(AttrCompanyID)
	}
	if caps.Audited {
		m.addAttribute(AttrCompanyID, AttrCreateDate, AttrModifiedDate)
	}
	if caps.GroupScoped {
		m.addAttribute(AttrGroupID)
	}
	if caps.ResourceIdentity {
		m.addAttribute(AttrResourcePrimKey)
	}
	if caps.Workflow {
		m.addAttribute(AttrStatus)
	}

	for _, attr := range overlay.Attributes {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		if len(columns) > 0 && !has(attr) {
			return nil, fmt.Errorf("%w: model %s attribute %q is not a column of %s", ErrConfiguration, name, attr, table)
		}
		m.addAttribute(attr)
	}

	filterExpr := overlay.Filter
	if filterExpr == "" && caps.Workflow {
		filterExpr = DefaultWorkflowFilter
	}
	filter, err := ParseFilter(filterExpr)
	if err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", ErrConfiguration, name, err)
	}
	m.filter = filter

	return m, nil
}

// IntrospectCapabilities derives capability flags from the columns of a table.
func IntrospectCapabilities(columns []string) Capabilities {
	set := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		set[strings.ToLower(col)] = struct{}{}
	}
	has := func(col string) bool {
		_, ok := set[col]
		return ok
	}
	return Capabilities{
		CompanyScoped:    has(AttrCompanyID),
		GroupScoped:      has(AttrGroupID),
		ResourceIdentity: has(AttrResourcePrimKey),
		Audited:          has(AttrCreateDate) && has(AttrModifiedDate),
		Workflow:         has(AttrStatus),
	}
}

// Apply returns c with the flags forced by o.
func (c Capabilities) Apply(o CapabilityOverlay) Capabilities {
	if o.CompanyScoped != nil {
		c.CompanyScoped = *o.CompanyScoped
	}
	if o.GroupScoped != nil {
		c.GroupScoped = *o.GroupScoped
	}
	if o.ResourceIdentity != nil {
		c.ResourceIdentity = *o.ResourceIdentity
	}
	if o.Audited != nil {
		c.Audited = *o.Audited
	}
	if o.Workflow != nil {
		c.Workflow = *o.Workflow
	}
	return c
}

// addAttribute appends attributes that are not tracked yet.
func (m *ModelDescriptor) addAttribute(attrs ...string) {
	for _, attr := range attrs {
		if !m.HasAttribute(attr) {
			m.attributes = append(m.attributes, attr)
		}
	}
}

// Name returns the qualified type name.
func (m *ModelDescriptor) Name() string { return m.name }

// SimpleName returns the type name without its package qualifier.
func (m *ModelDescriptor) SimpleName() string {
	if i := strings.LastIndex(m.name, "."); i >= 0 {
		return m.name[i+1:]
	}
	return m.name
}

// Table returns the backing table.
func (m *ModelDescriptor) Table() string { return m.table }

// PrimaryKey returns the primary key attribute.
func (m *ModelDescriptor) PrimaryKey() string { return m.primaryKey }

// Capabilities returns the capability flags.
func (m *ModelDescriptor) Capabilities() Capabilities { return m.caps }

// Filter returns the record filter, or nil when every record is in scope.
func (m *ModelDescriptor) Filter() *Filter { return m.filter }

// Attributes returns a copy of the tracked attributes, primary key first.
func (m *ModelDescriptor) Attributes() []string {
	out := make([]string, len(m.attributes))
	copy(out, m.attributes)
	return out
}

// HasAttribute reports whether attr is tracked.
func (m *ModelDescriptor) HasAttribute(attr string) bool {
	for _, a := range m.attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// Clone returns a copy owning a private attribute list.
func (m *ModelDescriptor) Clone() *ModelDescriptor {
	c := *m
	c.attributes = m.Attributes()
	return &c
}

func (m *ModelDescriptor) String() string {
	return m.SimpleName() + ": " + strings.Join(m.attributes, " ")
}
