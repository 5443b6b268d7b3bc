package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ActionType represents the type of repair action.
type ActionType string

const (
	// ActionReindex writes the authoritative record into the index.
	ActionReindex ActionType = "reindex"
	// ActionDeleteIndex removes an index document with no authoritative record.
	ActionDeleteIndex ActionType = "delete_index"
)

// Action represents a planned repair.
type Action struct {
	// Type specifies the action to perform.
	Type ActionType `json:"type"`

	// UID is the record identifier.
	UID string `json:"uid"`

	// Model is the qualified model name.
	Model string `json:"model"`

	// CompanyID is the owning company.
	CompanyID int64 `json:"company_id"`

	// Reason explains why this action is needed.
	Reason string `json:"reason"`

	// Record is the authoritative record for reindex actions.
	Record *Record `json:"-"`
}

// RepairPlan contains the planned actions for a set of Comparisons.
type RepairPlan struct {
	Actions []Action    `json:"actions"`
	Summary PlanSummary `json:"summary"`
}

// PlanSummary provides aggregate counts for a repair plan.
type PlanSummary struct {
	// Units is the number of Comparisons considered.
	Units int `json:"units"`

	// FailedUnits counts error Comparisons, which never produce actions.
	FailedUnits int `json:"failed_units"`

	// ReindexActions counts planned reindex actions.
	ReindexActions int `json:"reindex_actions"`

	// DeleteActions counts planned index deletions.
	DeleteActions int `json:"delete_actions"`

	// Truncated counts discrepancies that could not be planned because their
	// bucket was not kept by the output modes.
	Truncated int `json:"truncated"`
}

// RepairOptions controls plan building and execution.
type RepairOptions struct {
	// DryRun prevents execution of any mutations if true.
	DryRun bool

	// Reindex plans reindexing of missing and stale documents.
	Reindex bool

	// Delete plans deletion of orphan index documents.
	Delete bool

	// Confirmed indicates the caller has confirmed the mutations.
	// If false, mutations will not execute regardless of DryRun.
	Confirmed bool
}

// BuildPlan turns Comparisons into repair actions. It does NOT execute them;
// use ApplyPlan for that. Records only in the authoritative store and stale
// documents are reindexed; documents only in the index are deleted.
func BuildPlan(comparisons []*Comparison, opts RepairOptions) *RepairPlan {
	plan := &RepairPlan{}
	plan.Summary.Units = len(comparisons)

	for _, c := range comparisons {
		if c == nil {
			continue
		}
		if c.Failed() {
			plan.Summary.FailedUnits++
			continue
		}

		if opts.Reindex {
			plan.Summary.Truncated += c.Counts.OnlyAuthoritative - len(c.OnlyAuthoritative)
			for _, rec := range c.OnlyAuthoritative {
				plan.add(c, ActionReindex, rec, rec, "missing in index")
			}

			plan.Summary.Truncated += c.Counts.NotExact - len(c.NotExact)
			for _, m := range c.NotExact {
				plan.add(c, ActionReindex, m.Authoritative, m.Authoritative,
					"stale: "+strings.Join(m.Attributes, ","))
			}
		}

		if opts.Delete {
			plan.Summary.Truncated += c.Counts.OnlyIndex - len(c.OnlyIndex)
			for _, rec := range c.OnlyIndex {
				plan.add(c, ActionDeleteIndex, rec, nil, "missing in authoritative store")
			}
		}
	}

	sort.SliceStable(plan.Actions, func(i, j int) bool {
		a, b := plan.Actions[i], plan.Actions[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.UID < b.UID
	})

	return plan
}

func (p *RepairPlan) add(c *Comparison, t ActionType, rec, source *Record, reason string) {
	p.Actions = append(p.Actions, Action{
		Type:      t,
		UID:       rec.UID(),
		Model:     c.Model,
		CompanyID: c.CompanyID,
		Reason:    reason,
		Record:    source,
	})
	switch t {
	case ActionReindex:
		p.Summary.ReindexActions++
	case ActionDeleteIndex:
		p.Summary.DeleteActions++
	}
}

// ApplyPlan executes the actions in a repair plan.
// Returns the number of actions executed and any error encountered.
// Requires opts.Confirmed=true and opts.DryRun=false to actually execute.
func ApplyPlan(ctx context.Context, mutator IndexMutator, plan *RepairPlan, opts RepairOptions) (executed int, err error) {
	// Safety check: do not execute if not confirmed or dry-run
	if !opts.Confirmed || opts.DryRun {
		return 0, nil
	}
	if mutator == nil {
		return 0, fmt.Errorf("no index mutator configured")
	}

	var (
		reindex []*Record
		deletes []string
	)
	for _, action := range plan.Actions {
		switch action.Type {
		case ActionReindex:
			if action.Record != nil {
				reindex = append(reindex, action.Record)
			}
		case ActionDeleteIndex:
			deletes = append(deletes, action.UID)
		}
	}

	if len(reindex) > 0 {
		type ReindexBatcher interface {
			ReindexBatch(ctx context.Context, records []*Record) error
		}
		if batcher, ok := mutator.(ReindexBatcher); ok {
			if err := batcher.ReindexBatch(ctx, reindex); err != nil {
				return executed, fmt.Errorf("failed to batch reindex: %w", err)
			}
			executed += len(reindex)
		} else {
			for _, rec := range reindex {
				if err := mutator.Reindex(ctx, rec); err != nil {
					return executed, fmt.Errorf("failed to reindex %s: %w", rec.UID(), err)
				}
				executed++
			}
		}
	}

	if len(deletes) > 0 {
		type DeleteBatcher interface {
			DeleteDocuments(ctx context.Context, uids []string) error
		}
		if batcher, ok := mutator.(DeleteBatcher); ok {
			if err := batcher.DeleteDocuments(ctx, deletes); err != nil {
				return executed, fmt.Errorf("failed to batch delete index documents: %w", err)
			}
			executed += len(deletes)
		} else {
			for _, uid := range deletes {
				if err := mutator.DeleteDocument(ctx, uid); err != nil {
					return executed, fmt.Errorf("failed to delete index document %s: %w", uid, err)
				}
				executed++
			}
		}
	}

	return executed, nil
}
