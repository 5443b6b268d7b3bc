package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// GroupScope restricts a unit to a subset of a company's groups.
// The zero value means every group of the company.
type GroupScope struct {
	groups   []int64
	explicit bool
}

// AllGroups is the unrestricted group scope.
func AllGroups() GroupScope { return GroupScope{} }

// Groups restricts the scope to the given group ids. An empty list is an
// explicit, empty restriction and makes the unit a no-op.
func Groups(ids ...int64) GroupScope {
	g := make([]int64, len(ids))
	copy(g, ids)
	sort.Slice(g, func(i, j int) bool { return g[i] < g[j] })
	return GroupScope{groups: g, explicit: true}
}

// All reports whether the scope covers every group.
func (g GroupScope) All() bool { return !g.explicit }

// IDs returns a copy of the restricted group ids; nil for the unrestricted scope.
func (g GroupScope) IDs() []int64 {
	if !g.explicit {
		return nil
	}
	out := make([]int64, len(g.groups))
	copy(out, g.groups)
	return out
}

// Empty reports whether the scope is an explicit empty list.
func (g GroupScope) Empty() bool { return g.explicit && len(g.groups) == 0 }

// Trivial reports whether the restriction has no effect on a model without
// group scoping: the unrestricted scope, or a list containing only group 0.
func (g GroupScope) Trivial() bool {
	if !g.explicit {
		return true
	}
	for _, id := range g.groups {
		if id == 0 {
			return true
		}
	}
	return false
}

func (g GroupScope) String() string {
	if !g.explicit {
		return "all"
	}
	parts := make([]string, len(g.groups))
	for i, id := range g.groups {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// MarshalText renders the scope for logs and reports.
func (g GroupScope) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// Unit identifies one (model, company, group scope) reconciliation task.
type Unit struct {
	Model     *ModelDescriptor
	CompanyID int64
	Groups    GroupScope
}

func (u Unit) String() string {
	return fmt.Sprintf("%s@%d%s", u.Model.SimpleName(), u.CompanyID, u.Groups)
}

// Mismatch is a pair of records matching on key attributes but differing on
// at least one exact attribute.
type Mismatch struct {
	Authoritative *Record  `json:"authoritative"`
	Index         *Record  `json:"index"`
	Attributes    []string `json:"attributes"`

	// Anomalies lists the differing attributes whose value could not be interpreted.
	Anomalies []string `json:"anomalies,omitempty"`
}

// Err reports the anomalies of the pair as an ErrComparisonAnomaly, or nil
// when every value could be interpreted.
func (m Mismatch) Err() error {
	if len(m.Anomalies) == 0 {
		return nil
	}
	uid := ""
	if m.Authoritative != nil {
		uid = m.Authoritative.UID()
	}
	return fmt.Errorf("%w: %s: %s", ErrComparisonAnomaly, uid, strings.Join(m.Anomalies, ", "))
}

// Match is a pair of records agreeing on every exact attribute.
type Match struct {
	Authoritative *Record `json:"authoritative"`
	Index         *Record `json:"index"`
}

// Counts holds the size of every bucket, whether or not the bucket was kept.
type Counts struct {
	Exact             int `json:"exact"`
	NotExact          int `json:"not_exact"`
	OnlyAuthoritative int `json:"only_authoritative"`
	OnlyIndex         int `json:"only_index"`
}

// Total returns the number of classified entries.
func (c Counts) Total() int {
	return c.Exact + c.NotExact + c.OnlyAuthoritative + c.OnlyIndex
}

// Discrepancies returns the number of entries that are not exact matches.
func (c Counts) Discrepancies() int {
	return c.NotExact + c.OnlyAuthoritative + c.OnlyIndex
}

// UnitError is the error marker of a failed unit.
type UnitError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *UnitError) Error() string { return e.Kind + ": " + e.Message }

// Comparison is the result of reconciling one unit. Either Error is set and
// the buckets are empty, or every input record appears in exactly one bucket
// (when that bucket was requested) and in Counts.
type Comparison struct {
	Model             string           `json:"model"`
	CompanyID         int64            `json:"company_id"`
	Groups            GroupScope       `json:"groups"`
	Exact             []Match          `json:"exact,omitempty"`
	NotExact          []Mismatch       `json:"not_exact,omitempty"`
	OnlyAuthoritative []*Record        `json:"only_authoritative,omitempty"`
	OnlyIndex         []*Record        `json:"only_index,omitempty"`
	Counts            Counts           `json:"counts"`
	Error             *UnitError       `json:"error,omitempty"`
	Duration          time.Duration    `json:"duration_ns"`
	Descriptor        *ModelDescriptor `json:"-"`
}

// Failed reports whether the unit ended in error.
func (c *Comparison) Failed() bool { return c.Error != nil }

// Consistent reports whether the unit succeeded without discrepancies.
func (c *Comparison) Consistent() bool {
	return c.Error == nil && c.Counts.Discrepancies() == 0
}

// newErrorComparison builds the error marker for a unit.
func newErrorComparison(unit Unit, err error) *Comparison {
	c := &Comparison{
		Groups:    unit.Groups,
		CompanyID: unit.CompanyID,
		Error: &UnitError{
			Kind:    Classify(err),
			Message: err.Error(),
		},
	}
	if unit.Model != nil {
		c.Model = unit.Model.Name()
		c.Descriptor = unit.Model
	}
	return c
}

// Summary aggregates a set of Comparisons.
type Summary struct {
	Units      int            `json:"units"`
	Failed     int            `json:"failed"`
	Consistent int            `json:"consistent"`
	Counts     Counts         `json:"counts"`
	Errors     map[string]int `json:"errors,omitempty"`
}

// Summarize aggregates counts and error kinds.
func Summarize(comparisons []*Comparison) Summary {
	s := Summary{Units: len(comparisons)}
	for _, c := range comparisons {
		if c.Failed() {
			s.Failed++
			if s.Errors == nil {
				s.Errors = make(map[string]int)
			}
			s.Errors[c.Error.Kind]++
			continue
		}
		if c.Consistent() {
			s.Consistent++
		}
		s.Counts.Exact += c.Counts.Exact
		s.Counts.NotExact += c.Counts.NotExact
		s.Counts.OnlyAuthoritative += c.Counts.OnlyAuthoritative
		s.Counts.OnlyIndex += c.Counts.OnlyIndex
	}
	return s
}
