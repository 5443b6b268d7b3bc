package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScopeContext is the identity a unit runs under. Adapters read it from the
// context passed to them instead of from shared state.
type ScopeContext struct {
	UnitID    string
	Model     string
	CompanyID int64
	Groups    GroupScope
}

type scopeKey struct{}

// WithScope attaches a scope to ctx.
func WithScope(ctx context.Context, scope ScopeContext) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the scope of the running unit.
func ScopeFromContext(ctx context.Context) (ScopeContext, bool) {
	scope, ok := ctx.Value(scopeKey{}).(ScopeContext)
	return scope, ok
}

// Env bundles the collaborators a unit calls. Store is required; every other
// collaborator is optional. A nil Index means no index is configured.
type Env struct {
	Store      StoreAdapter
	Index      IndexAdapter
	Enrichment EnrichmentProvider
	Related    RelatedDataFolder
	Logger     *zap.Logger
}

func (e *Env) logger() *zap.Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Skipped reports whether a unit contributes nothing without running: an
// explicit empty group list, or a group restriction on a model that has no
// groups.
func Skipped(unit Unit) bool {
	if unit.Groups.Empty() {
		return true
	}
	return !unit.Model.Capabilities().GroupScoped && !unit.Groups.Trivial()
}

// RunUnit reconciles one unit. It returns ok=false when the unit contributes
// no Comparison. Failures never escape: any error or panic becomes a
// Comparison carrying the error marker.
func RunUnit(ctx context.Context, unit Unit, policy *MatchPolicy, modes OutputModes, env *Env) (c *Comparison, ok bool) {
	if unit.Model == nil {
		return newErrorComparison(unit, fmt.Errorf("%w: unit without model", ErrConfiguration)), true
	}
	if Skipped(unit) {
		return nil, false
	}

	log := env.logger().With(
		zap.String("model", unit.Model.Name()),
		zap.Int64("company_id", unit.CompanyID),
		zap.Stringer("groups", unit.Groups),
	)
	start := time.Now()

	scope := ScopeContext{
		UnitID:    uuid.NewString(),
		Model:     unit.Model.Name(),
		CompanyID: unit.CompanyID,
		Groups:    unit.Groups,
	}
	ctx, cancel := context.WithCancel(WithScope(ctx, scope))
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			c = newErrorComparison(unit, fmt.Errorf("panic: %v", r))
			ok = true
		}
		if c != nil {
			c.Duration = time.Since(start)
			if c.Error != nil {
				log.Warn("Unit failed",
					zap.String("kind", c.Error.Kind),
					zap.String("error", c.Error.Message),
					zap.Duration("duration", c.Duration))
			} else {
				log.Debug("Unit finished",
					zap.Int("exact", c.Counts.Exact),
					zap.Int("not_exact", c.Counts.NotExact),
					zap.Int("only_authoritative", c.Counts.OnlyAuthoritative),
					zap.Int("only_index", c.Counts.OnlyIndex),
					zap.Duration("duration", c.Duration))
			}
		}
	}()

	if env == nil || env.Store == nil {
		return newErrorComparison(unit, fmt.Errorf("%w: no store adapter", ErrConfiguration)), true
	}
	if policy == nil {
		return newErrorComparison(unit, fmt.Errorf("%w: no policy for %s", ErrConfiguration, unit.Model.Name())), true
	}

	for _, collaborator := range []any{env.Store, env.Index, env.Enrichment, env.Related} {
		binder, isBinder := collaborator.(ScopeBinder)
		if !isBinder {
			continue
		}
		release, err := binder.Bind(ctx, scope)
		if err != nil {
			return newErrorComparison(unit, fmt.Errorf("binding scope: %w", err)), true
		}
		if release != nil {
			defer release()
		}
	}

	log.Debug("Unit started", zap.String("unit_id", scope.UnitID))

	authoritative, err := loadAuthoritative(ctx, unit, policy, env)
	if err != nil {
		return newErrorComparison(unit, err), true
	}

	indexRecords, skip, err := loadIndex(ctx, unit, policy, modes, env, len(authoritative) > 0)
	if err != nil {
		return newErrorComparison(unit, err), true
	}
	if skip {
		log.Debug("Unit skipped: index unavailable and no authoritative records")
		return nil, false
	}

	c = Reconcile(authoritative, indexRecords, policy, modes)
	for _, m := range c.NotExact {
		if err := m.Err(); err != nil {
			log.Warn("Uninterpretable attribute values", zap.String("kind", Classify(err)), zap.Error(err))
		}
	}
	c.Model = unit.Model.Name()
	c.Descriptor = unit.Model
	c.CompanyID = unit.CompanyID
	c.Groups = unit.Groups
	return c, true
}

// loadAuthoritative fetches, enriches and folds the authoritative records,
// then freezes them. The order is fixed: enrichment and folding need the
// complete store row.
func loadAuthoritative(ctx context.Context, unit Unit, policy *MatchPolicy, env *Env) ([]*Record, error) {
	records, err := env.Store.Fetch(ctx, StoreRequest{
		Model:            unit.Model,
		CompanyID:        unit.CompanyID,
		Groups:           unit.Groups,
		Filter:           unit.Model.Filter(),
		VersionAttribute: policy.VersionAttribute,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", unit.Model.Name(), err)
	}

	if policy.Enrich && env.Enrichment != nil && len(records) > 0 {
		enricher, err := env.Enrichment.ForUnit(ctx, unit, records)
		if err != nil {
			return nil, fmt.Errorf("preparing enrichment: %w", err)
		}
		for _, uid := range sortedUIDs(records) {
			if err := enricher.AddComputedFields(ctx, records[uid]); err != nil {
				return nil, fmt.Errorf("enriching %s: %w", uid, err)
			}
		}
	}

	if len(policy.RelatedData) > 0 && env.Related != nil && len(records) > 0 {
		records, err = env.Related.Fold(ctx, unit, policy.RelatedData, records)
		if err != nil {
			return nil, fmt.Errorf("folding related data: %w", err)
		}
	}

	out := make([]*Record, 0, len(records))
	for _, uid := range sortedUIDs(records) {
		rec := records[uid]
		rec.Freeze()
		out = append(out, rec)
	}
	return out, nil
}

// loadIndex fetches the index records of the unit. An unavailable index
// yields an empty set unless the policy asks for an error; when the unit
// has no authoritative records and only-index output is requested the unit
// is skipped instead.
func loadIndex(ctx context.Context, unit Unit, policy *MatchPolicy, modes OutputModes, env *Env, haveAuthoritative bool) ([]*Record, bool, error) {
	var err error
	if env.Index == nil {
		err = fmt.Errorf("%w: no index adapter configured", ErrIndexUnavailable)
	} else if !haveAuthoritative && !modes.Has(OutputOnlyIndex) {
		return nil, false, nil
	}

	var records []*Record
	if err == nil {
		records, err = env.Index.Fetch(ctx, IndexRequest{
			Model:         unit.Model,
			RelatedModels: policy.RelatedModels,
			Attributes:    policy.QueriedAttributes(),
			CompanyID:     unit.CompanyID,
			Groups:        unit.Groups,
			Policy:        policy,
		})
	}

	if err != nil {
		if !errors.Is(err, ErrIndexUnavailable) || policy.OnIndexUnavailable == IndexUnavailableError {
			return nil, false, fmt.Errorf("reading index for %s: %w", unit.Model.Name(), err)
		}
		if !haveAuthoritative && modes.Has(OutputOnlyIndex) {
			return nil, true, nil
		}
		return nil, false, nil
	}

	for _, rec := range records {
		rec.Freeze()
	}
	return records, false, nil
}

func sortedUIDs(records map[string]*Record) []string {
	uids := make([]string, 0, len(records))
	for uid := range records {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}
