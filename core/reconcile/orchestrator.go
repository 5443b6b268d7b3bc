package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when RunRequest.Concurrency is not positive.
const DefaultConcurrency = 4

// Observer receives every unit outcome. Implementations must be safe for
// concurrent use.
type Observer interface {
	UnitStarted(model string)
	UnitFinished(model string, c *Comparison, skipped bool, elapsed time.Duration)
}

// RunRequest describes a batch of units.
type RunRequest struct {
	Models []*ModelDescriptor
	// Companies lists the company ids to reconcile.
	Companies []int64
	// GroupScopes lists the group scopes per company. A company without an
	// entry runs once with AllGroups.
	GroupScopes map[int64][]GroupScope
	Modes       OutputModes
	Concurrency int
}

// Orchestrator runs reconciliation units on a bounded worker pool.
type Orchestrator struct {
	env      *Env
	resolver PolicyResolver
	observer Observer
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator. The resolver and env are shared
// read-only by every unit.
func NewOrchestrator(env *Env, resolver PolicyResolver, observer Observer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		env:      env,
		resolver: resolver,
		observer: observer,
		logger:   logger,
	}
}

// Units expands a request into the units it covers, in submission order.
func (r RunRequest) Units() []Unit {
	var units []Unit
	for _, model := range r.Models {
		for _, company := range r.Companies {
			scopes, ok := r.GroupScopes[company]
			if !ok {
				scopes = []GroupScope{AllGroups()}
			}
			for _, groups := range scopes {
				units = append(units, Unit{Model: model, CompanyID: company, Groups: groups})
			}
		}
	}
	return units
}

// Run submits every unit of the request and streams Comparisons as units
// complete. Completion order is unspecified. The channel is closed once
// every submitted unit has finished. A failing unit yields an error
// Comparison and never stops its siblings. Cancelling ctx stops submitting
// new units; units already running see the cancellation through their
// adapters.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) <-chan *Comparison {
	limit := req.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	modes := req.Modes
	if modes == 0 {
		modes = OutputAll
	}

	runID := uuid.NewString()
	log := o.logger.With(zap.String("run_id", runID))
	units := req.Units()
	policies := o.resolvePolicies(req.Models)

	out := make(chan *Comparison, limit)

	go func() {
		defer close(out)
		start := time.Now()
		log.Info("Reconciliation run started",
			zap.Int("models", len(req.Models)),
			zap.Int("companies", len(req.Companies)),
			zap.Int("units", len(units)),
			zap.Int("concurrency", limit),
			zap.Stringer("modes", modes))

		var g errgroup.Group
		g.SetLimit(limit)

		submitted := 0
		for _, unit := range units {
			if ctx.Err() != nil {
				break
			}
			unit := unit
			submitted++
			g.Go(func() error {
				if c, ok := o.runOne(ctx, unit, policies[unit.Model.Name()], modes); ok {
					out <- c
				}
				return nil
			})
		}
		_ = g.Wait()

		log.Info("Reconciliation run finished",
			zap.Int("submitted", submitted),
			zap.Duration("duration", time.Since(start)))
	}()

	return out
}

type resolvedPolicy struct {
	policy *MatchPolicy
	err    error
}

// resolvePolicies resolves every model once up front so units share the
// same immutable policy. A failure only affects that model's units.
func (o *Orchestrator) resolvePolicies(models []*ModelDescriptor) map[string]resolvedPolicy {
	out := make(map[string]resolvedPolicy, len(models))
	for _, model := range models {
		if _, ok := out[model.Name()]; ok {
			continue
		}
		if o.resolver == nil {
			out[model.Name()] = resolvedPolicy{err: fmt.Errorf("%w: no policy resolver", ErrConfiguration)}
			continue
		}
		policy, err := o.resolver.PolicyFor(model)
		if err == nil && policy != nil {
			err = policy.Validate(model)
		}
		if err != nil {
			o.logger.Error("Failed to resolve policy", zap.String("model", model.Name()), zap.Error(err))
		}
		out[model.Name()] = resolvedPolicy{policy: policy, err: err}
	}
	return out
}

func (o *Orchestrator) runOne(ctx context.Context, unit Unit, resolved resolvedPolicy, modes OutputModes) (*Comparison, bool) {
	model := unit.Model.Name()
	if o.observer != nil {
		o.observer.UnitStarted(model)
	}
	start := time.Now()

	var (
		c  *Comparison
		ok bool
	)
	if resolved.err != nil {
		if Skipped(unit) {
			ok = false
		} else {
			c, ok = newErrorComparison(unit, configurationError(resolved.err)), true
		}
	} else {
		c, ok = RunUnit(ctx, unit, resolved.policy, modes, o.env)
	}

	if o.observer != nil {
		o.observer.UnitFinished(model, c, !ok, time.Since(start))
	}
	return c, ok
}

func configurationError(err error) error {
	if errors.Is(err, ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConfiguration, err)
}

// Collect drains a Run channel into a slice.
func Collect(ch <-chan *Comparison) []*Comparison {
	var out []*Comparison
	for c := range ch {
		out = append(out, c)
	}
	return out
}
