// Package policy resolves the per-model reconciliation policy from a YAML
// model table.
//
// The table is parsed once into an immutable Table. Resolver.PolicyFor walks
// a fixed cascade for every setting: the model's own entry, workflowedModel
// for models with a workflow status, resourcedModel for models with a
// resource identity, and default. Index field name mappings are merged along
// the cascade instead of replaced.
//
// # Usage
//
//	table, err := policy.Load(cfg.Check.PolicyFile) // "" loads the embedded default
//	resolver := policy.NewResolver(table, policy.Options{IgnoreCase: cfg.Check.IgnoreCase})
//	p, err := resolver.PolicyFor(model)
package policy
