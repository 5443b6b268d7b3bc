// Package index reads and repairs the search index on Elasticsearch.
//
// Every request goes through a circuit breaker. Transport failures, 5xx
// answers, missing indices and an open circuit are reported as
// reconcile.ErrIndexUnavailable; other rejected requests as
// reconcile.ErrQuery.
//
// Two readers implement reconcile.IndexAdapter:
//
//   - QueryReader filters on the server and pages with search_after.
//   - DirectReader scrolls through every document and filters locally. It
//     can also list term values and count documents.
//
// Mutator implements reconcile.IndexMutator for repair plans.
package index
