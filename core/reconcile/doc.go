// Package reconcile checks that a search index agrees with the store it is
// built from.
//
// For every model and every company (optionally narrowed to a group subset)
// a unit fetches the authoritative records, enriches them, fetches the
// indexed representation of the same scope and classifies every record as
// an exact match, a loose match (same key attributes, different exact
// attributes), present only in the store, or present only in the index.
//
// # Architecture
//
// 1. ModelDescriptor and Record: the schema of a record type and one
// snapshot of a record from either source. Records are frozen before
// comparison.
//
// 2. Reconcile: the comparator. It never fails; malformed values make a
// pair NOT_EXACT.
//
// 3. RunUnit: calls the collaborators in a fixed order (store fetch,
// enrichment, related data fold, index fetch) and converts every failure
// into an error Comparison.
//
// 4. Orchestrator: runs units on a bounded worker pool and streams the
// Comparisons back in completion order.
//
// 5. BuildPlan and ApplyPlan: turn discrepancies into index repairs.
//
// The collaborators (StoreAdapter, IndexAdapter, EnrichmentProvider,
// RelatedDataFolder, PolicyResolver) are interfaces implemented by the
// store, index and policy packages.
//
// # Usage Example
//
//	env := &reconcile.Env{Store: storeAdapter, Index: indexReader, Logger: log}
//	orch := reconcile.NewOrchestrator(env, resolver, metrics, log)
//
//	ch := orch.Run(ctx, reconcile.RunRequest{
//	    Models:      models,
//	    Companies:   []int64{20097},
//	    Modes:       reconcile.OutputDiscrepancies,
//	    Concurrency: 8,
//	})
//	for c := range ch {
//	    fmt.Println(c.Model, c.Counts)
//	}
package reconcile
