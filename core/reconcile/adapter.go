package reconcile

import (
	"context"
)

// DocumentCountUnknown is returned by IndexAdapter.DocumentCount when the
// reader cannot tell how many documents the index holds.
const DocumentCountUnknown int64 = -1

// StoreRequest scopes an authoritative fetch.
type StoreRequest struct {
	Model     *ModelDescriptor
	CompanyID int64
	Groups    GroupScope
	// Filter restricts the records in scope; nil keeps every record.
	Filter *Filter
	// VersionAttribute makes one record per version when set.
	VersionAttribute string
}

// StoreAdapter reads records from the authoritative store.
type StoreAdapter interface {
	// Fetch returns the records in scope keyed by uid. The result is
	// deterministic for identical inputs. Failures wrap ErrStoreUnavailable
	// or ErrQuery.
	Fetch(ctx context.Context, req StoreRequest) (map[string]*Record, error)
}

// IndexRequest scopes an index fetch.
type IndexRequest struct {
	Model *ModelDescriptor
	// RelatedModels are extra model names whose documents count as Model's.
	RelatedModels []string
	// Attributes are the tracked attributes to read back.
	Attributes []string
	CompanyID  int64
	Groups     GroupScope
	Policy     *MatchPolicy
}

// IndexAdapter reads the indexed representation of records.
type IndexAdapter interface {
	// Fetch returns the index records in scope. A missing mapping or an
	// unreachable index wraps ErrIndexUnavailable.
	Fetch(ctx context.Context, req IndexRequest) ([]*Record, error)

	// TermValues returns the distinct values of a field across the index.
	TermValues(ctx context.Context, field string) ([]string, error)

	// DocumentCount returns the number of documents, or DocumentCountUnknown.
	DocumentCount(ctx context.Context) (int64, error)
}

// Enricher adds computed attributes to the authoritative records of one unit.
type Enricher interface {
	// AddComputedFields mutates only the attribute mapping of rec.
	AddComputedFields(ctx context.Context, rec *Record) error
}

// EnrichmentProvider prepares an Enricher for a unit. Implementations may
// preload everything the unit's records need.
type EnrichmentProvider interface {
	ForUnit(ctx context.Context, unit Unit, records map[string]*Record) (Enricher, error)
}

// RelatedDataFolder folds related-model data into authoritative records.
type RelatedDataFolder interface {
	// Fold returns the records that survive the related data filters.
	Fold(ctx context.Context, unit Unit, related []RelatedData, records map[string]*Record) (map[string]*Record, error)
}

// PolicyResolver resolves the match policy of a model. Results are read-only.
type PolicyResolver interface {
	PolicyFor(model *ModelDescriptor) (*MatchPolicy, error)
}

// ScopeBinder is implemented by adapters that keep per-scope state, such as
// a shard connection for the unit's company. The release func is called on
// every exit path of the unit.
type ScopeBinder interface {
	Bind(ctx context.Context, scope ScopeContext) (release func(), err error)
}

// IndexMutator repairs the index from a plan.
type IndexMutator interface {
	// Reindex writes the authoritative record into the index.
	Reindex(ctx context.Context, rec *Record) error

	// DeleteDocument removes the document with the given uid.
	DeleteDocument(ctx context.Context, uid string) error
}
