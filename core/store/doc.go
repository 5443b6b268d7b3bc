// Package store reads authoritative records from the relational database.
//
// Store implements reconcile.StoreAdapter on gorm and also serves the
// collaborators a unit needs from the same connection:
//
//   - Companies, Groups and GroupScopes enumerate the units of a run. Group
//     lists are cached per company with a TTL and concurrent misses share a
//     single query.
//   - Permissions enriches records with the role ids allowed to view them
//     (reconcile.EnrichmentProvider).
//   - Related folds rows of related tables into records and drops owners
//     whose related row fails a filter (reconcile.RelatedDataFolder).
//
// Driver failures are mapped onto the reconcile error taxonomy: connection
// loss is ErrStoreUnavailable, anything else is ErrQuery.
package store
