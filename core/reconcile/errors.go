package reconcile

import (
	"context"
	"errors"
)

// Sentinel errors making up the failure taxonomy. Adapters wrap them with
// fmt.Errorf("...: %w", ErrX) so the unit boundary can classify the failure.
var (
	// ErrConfiguration marks a missing primary key or an unresolvable policy.
	ErrConfiguration = errors.New("configuration error")

	// ErrStoreUnavailable marks an authoritative store that cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrQuery marks an authoritative store query that was rejected or failed mid-way.
	ErrQuery = errors.New("query error")

	// ErrIndexUnavailable marks an index that cannot be read or has no mapping for a model.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrComparisonAnomaly marks an attribute value the comparator cannot interpret.
	ErrComparisonAnomaly = errors.New("comparison anomaly")

	// ErrRecordFrozen is returned when a frozen record is mutated.
	ErrRecordFrozen = errors.New("record is frozen")
)

// Error kinds stored in UnitError.Kind.
const (
	KindConfiguration     = "ConfigurationError"
	KindStoreUnavailable  = "StoreUnavailable"
	KindQuery             = "QueryError"
	KindIndexUnavailable  = "IndexUnavailable"
	KindComparisonAnomaly = "ComparisonAnomaly"
	KindCanceled          = "Canceled"
	KindInternal          = "InternalError"
)

// Classify maps an error onto the taxonomy.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrQuery):
		return KindQuery
	case errors.Is(err, ErrIndexUnavailable):
		return KindIndexUnavailable
	case errors.Is(err, ErrComparisonAnomaly):
		return KindComparisonAnomaly
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
