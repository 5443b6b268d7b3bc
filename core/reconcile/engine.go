package reconcile

import (
	"sort"
)

// Reconcile classifies authoritative and index records into the four buckets
// of a Comparison. Records are matched on the policy's key attributes and
// compared on its exact attributes. Buckets not selected by modes are left
// empty but still counted. Malformed values never abort: they make the pair
// NOT_EXACT.
//
// Several records sharing a signature on one side are paired in UID order
// with the other side's; the surplus goes to the matching only-X bucket so
// every input record is counted exactly once.
func Reconcile(authoritative, index []*Record, policy *MatchPolicy, modes OutputModes) *Comparison {
	if policy == nil {
		policy = &MatchPolicy{}
	}

	authBySig, authSigs := partition(authoritative, policy)
	indexBySig, _ := partition(index, policy)

	c := &Comparison{}

	for _, sig := range authSigs {
		auths := authBySig[sig]
		idxs := indexBySig[sig]
		delete(indexBySig, sig)

		n := len(auths)
		if len(idxs) < n {
			n = len(idxs)
		}

		for i := 0; i < n; i++ {
			differing, anomalies := compareExact(auths[i], idxs[i], policy)
			if len(differing) == 0 {
				c.Counts.Exact++
				if modes.Has(OutputExact) {
					c.Exact = append(c.Exact, Match{Authoritative: auths[i], Index: idxs[i]})
				}
				continue
			}
			c.Counts.NotExact++
			if modes.Has(OutputNotExact) {
				c.NotExact = append(c.NotExact, Mismatch{
					Authoritative: auths[i],
					Index:         idxs[i],
					Attributes:    differing,
					Anomalies:     anomalies,
				})
			}
		}

		for _, rec := range auths[n:] {
			c.Counts.OnlyAuthoritative++
			if modes.Has(OutputOnlyAuthoritative) {
				c.OnlyAuthoritative = append(c.OnlyAuthoritative, rec)
			}
		}
		for _, rec := range idxs[n:] {
			c.Counts.OnlyIndex++
			if modes.Has(OutputOnlyIndex) {
				c.OnlyIndex = append(c.OnlyIndex, rec)
			}
		}
	}

	// Whatever is left in the index map has no authoritative counterpart.
	remaining := make([]string, 0, len(indexBySig))
	for sig := range indexBySig {
		remaining = append(remaining, sig)
	}
	sort.Strings(remaining)
	for _, sig := range remaining {
		for _, rec := range indexBySig[sig] {
			c.Counts.OnlyIndex++
			if modes.Has(OutputOnlyIndex) {
				c.OnlyIndex = append(c.OnlyIndex, rec)
			}
		}
	}

	return c
}

// partition groups records by signature. Records within a signature and the
// returned signature list are sorted, which keeps the result independent of
// input order.
func partition(records []*Record, policy *MatchPolicy) (map[string][]*Record, []string) {
	bySig := make(map[string][]*Record, len(records))
	var sigs []string
	for _, rec := range records {
		if rec == nil {
			continue
		}
		sig := rec.Signature(policy.KeyAttributes, policy.IgnoreCase)
		if _, ok := bySig[sig]; !ok {
			sigs = append(sigs, sig)
		}
		bySig[sig] = append(bySig[sig], rec)
	}
	for _, recs := range bySig {
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].UID() < recs[j].UID() })
	}
	sort.Strings(sigs)
	return bySig, sigs
}

// compareExact returns the exact attributes on which a and b differ, and the
// subset of those whose values could not be interpreted.
func compareExact(a, b *Record, policy *MatchPolicy) (differing, anomalies []string) {
	for _, attr := range policy.ExactAttributes {
		equal, anomaly := valuesEqual(a.Get(attr), b.Get(attr), policy.IgnoreCase)
		if equal {
			continue
		}
		differing = append(differing, attr)
		if anomaly {
			anomalies = append(anomalies, attr)
		}
	}
	return differing, anomalies
}
