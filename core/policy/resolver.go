package policy

import (
	"fmt"
	"strings"
	"sync"

	"index-checker/core/reconcile"
)

// Options are the process-wide defaults applied when no table entry sets a value.
type Options struct {
	IgnoreCase         bool
	OnIndexUnavailable reconcile.IndexUnavailablePolicy
}

// Resolver answers per-model policy questions from an immutable Table.
// Lookups cascade from the model's own entry to workflowedModel (workflow
// models), resourcedModel (models with a resource identity) and finally
// default.
type Resolver struct {
	table *Table
	opts  Options

	mu       sync.RWMutex
	policies map[string]*reconcile.MatchPolicy
}

// NewResolver creates a resolver over t.
func NewResolver(t *Table, opts Options) *Resolver {
	if opts.OnIndexUnavailable == "" {
		opts.OnIndexUnavailable = reconcile.IndexUnavailableEmpty
	}
	return &Resolver{
		table:    t,
		opts:     opts,
		policies: make(map[string]*reconcile.MatchPolicy),
	}
}

// Table returns the underlying model table.
func (r *Resolver) Table() *Table { return r.table }

// chain lists the entries consulted for a model, most specific first.
func chain(model string, caps reconcile.Capabilities) []string {
	names := []string{model}
	if caps.Workflow {
		names = append(names, EntryWorkflow)
	}
	if caps.ResourceIdentity {
		names = append(names, EntryResourced)
	}
	return append(names, EntryDefault)
}

// lookup returns the first value set along the cascade.
func lookup[T any](t *Table, model string, caps reconcile.Capabilities, get func(*Entry) (T, bool)) (T, bool) {
	for _, name := range chain(model, caps) {
		e, ok := t.Entry(name)
		if !ok {
			continue
		}
		if v, ok := get(e); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func stringList(f func(*Entry) []string) func(*Entry) ([]string, bool) {
	return func(e *Entry) ([]string, bool) {
		v := f(e)
		return v, v != nil
	}
}

func optional[T any](f func(*Entry) *T) func(*Entry) (T, bool) {
	return func(e *Entry) (T, bool) {
		p := f(e)
		if p == nil {
			var zero T
			return zero, false
		}
		return *p, true
	}
}

// Overlay returns the schema overlay for a model given its introspected
// capabilities. Only the model's own entry contributes table, key and
// attribute overrides; the filter cascades.
func (r *Resolver) Overlay(model string, introspected reconcile.Capabilities) reconcile.Overlay {
	var o reconcile.Overlay
	if e, ok := r.table.Entry(model); ok {
		o.Table = e.Table
		o.PrimaryKey = e.PrimaryKey
		o.Attributes = e.Attributes
		o.Capabilities = reconcile.CapabilityOverlay{
			CompanyScoped:    e.Capabilities.CompanyScoped,
			GroupScoped:      e.Capabilities.GroupScoped,
			ResourceIdentity: e.Capabilities.ResourceIdentity,
			Audited:          e.Capabilities.Audited,
			Workflow:         e.Capabilities.Workflow,
		}
	}
	caps := introspected.Apply(o.Capabilities)
	if filter, ok := lookup(r.table, model, caps, optional(func(e *Entry) *string { return e.Filter })); ok {
		o.Filter = filter
	}
	return o
}

// PolicyFor resolves the match policy of a model. The result is shared and
// must not be modified.
func (r *Resolver) PolicyFor(model *reconcile.ModelDescriptor) (*reconcile.MatchPolicy, error) {
	r.mu.RLock()
	p, ok := r.policies[model.Name()]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := r.resolve(model)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if cached, ok := r.policies[model.Name()]; ok {
		p = cached
	} else {
		r.policies[model.Name()] = p
	}
	r.mu.Unlock()
	return p, nil
}

func (r *Resolver) resolve(model *reconcile.ModelDescriptor) (*reconcile.MatchPolicy, error) {
	name := model.Name()
	caps := model.Capabilities()
	t := r.table

	if t.Ignored(name) {
		return nil, fmt.Errorf("%w: model %s is ignored", reconcile.ErrConfiguration, name)
	}

	exact, ok := lookup(t, name, caps, stringList(func(e *Entry) []string { return e.ExactAttributes }))
	if !ok || len(exact) == 0 {
		return nil, fmt.Errorf("%w: no exact attributes configured for %s", reconcile.ErrConfiguration, name)
	}
	keys, ok := lookup(t, name, caps, stringList(func(e *Entry) []string { return e.KeyAttributes }))
	if !ok || len(keys) == 0 {
		keys = []string{model.PrimaryKey()}
	}
	toQuery, _ := lookup(t, name, caps, stringList(func(e *Entry) []string { return e.AttributesToQuery }))
	related, _ := lookup(t, name, caps, func(e *Entry) ([]reconcile.RelatedData, bool) {
		return e.RelatedData, e.RelatedData != nil
	})
	relatedModels, _ := lookup(t, name, caps, stringList(func(e *Entry) []string { return e.RelatedModels }))

	p := &reconcile.MatchPolicy{
		KeyAttributes:      attributeList(keys, model),
		ExactAttributes:    attributeList(exact, model),
		AttributesToQuery:  attributeList(toQuery, model),
		IndexFieldNames:    r.fieldNames(name, caps),
		RelatedData:        related,
		RelatedModels:      relatedModels,
		IgnoreCase:         r.opts.IgnoreCase,
		OnIndexUnavailable: r.opts.OnIndexUnavailable,
	}

	if v, ok := lookup(t, name, caps, optional(func(e *Entry) *bool { return e.IgnoreCase })); ok {
		p.IgnoreCase = v
	}
	if v, ok := lookup(t, name, caps, optional(func(e *Entry) *bool { return e.Enrich })); ok {
		p.Enrich = v
	}
	if v, ok := lookup(t, name, caps, optional(func(e *Entry) *string { return e.OnIndexUnavailable })); ok {
		p.OnIndexUnavailable = reconcile.IndexUnavailablePolicy(v)
	}
	if t.IndexAllVersions {
		if v, ok := lookup(t, name, caps, optional(func(e *Entry) *string { return e.VersionAttribute })); ok {
			p.VersionAttribute = strings.ToLower(v)
		}
	}

	available := p.RecordAttributes(model)
	p.KeyAttributes = dropMissingScope(p.KeyAttributes, available)
	if len(p.KeyAttributes) == 0 {
		p.KeyAttributes = []string{model.PrimaryKey()}
	}
	p.ExactAttributes = dropMissingScope(p.ExactAttributes, available)

	if err := p.Validate(model); err != nil {
		return nil, err
	}
	return p, nil
}

// dropMissingScope removes the well-known scope attributes a model does not
// carry, so shared entries can list group_id or status for every model.
// Other unknown names are left for Validate to reject.
func dropMissingScope(attrs []string, available map[string]struct{}) []string {
	out := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := available[attr]; !ok && reconcile.ScopeAttribute(attr) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// fieldNames merges the index field mappings along the cascade, the most
// specific entry winning per attribute.
func (r *Resolver) fieldNames(model string, caps reconcile.Capabilities) map[string]string {
	names := chain(model, caps)
	out := make(map[string]string)
	for i := len(names) - 1; i >= 0; i-- {
		e, ok := r.table.Entry(names[i])
		if !ok {
			continue
		}
		for attr, field := range e.IndexFieldNames {
			if attr != "pk" {
				attr = strings.ToLower(attr)
			}
			out[attr] = field
		}
	}
	return out
}

// attributeList lowercases attribute names and replaces the "pk" token with
// the model's primary key.
func attributeList(attrs []string, model *reconcile.ModelDescriptor) []string {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(attrs))
	seen := make(map[string]struct{}, len(attrs))
	for _, attr := range attrs {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "pk" {
			attr = model.PrimaryKey()
		}
		if _, ok := seen[attr]; ok || attr == "" {
			continue
		}
		seen[attr] = struct{}{}
		out = append(out, attr)
	}
	return out
}
