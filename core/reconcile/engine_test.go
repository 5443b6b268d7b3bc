package reconcile

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_DocumentScenario(t *testing.T) {
	m := documentModel(t)
	policy := documentPolicy()
	auth := []*Record{newRec(t, m, map[string]any{"document_id": int64(1), "company_id": int64(10), "title": "A", "status": "approved"})}

	t.Run("exact", func(t *testing.T) {
		idx := []*Record{newRec(t, m, map[string]any{"document_id": "1", "company_id": float64(10), "title": "A", "status": "approved"})}

		c := Reconcile(auth, idx, policy, OutputAll)

		require.Len(t, c.Exact, 1)
		assert.Empty(t, c.NotExact)
		assert.Empty(t, c.OnlyAuthoritative)
		assert.Empty(t, c.OnlyIndex)
		assert.Equal(t, Counts{Exact: 1}, c.Counts)
	})

	t.Run("status differs", func(t *testing.T) {
		idx := []*Record{newRec(t, m, map[string]any{"document_id": "1", "company_id": "10", "title": "A", "status": "draft"})}

		c := Reconcile(auth, idx, policy, OutputAll)

		assert.Empty(t, c.Exact)
		require.Len(t, c.NotExact, 1)
		assert.Equal(t, []string{"status"}, c.NotExact[0].Attributes)
		assert.Empty(t, c.NotExact[0].Anomalies)
		assert.Equal(t, Counts{NotExact: 1}, c.Counts)
	})

	t.Run("missing in index", func(t *testing.T) {
		c := Reconcile(auth, nil, policy, OutputAll)

		assert.Empty(t, c.Exact)
		assert.Empty(t, c.NotExact)
		require.Len(t, c.OnlyAuthoritative, 1)
		assert.Equal(t, "com.example.Document_PK_1", c.OnlyAuthoritative[0].UID())
		assert.Equal(t, Counts{OnlyAuthoritative: 1}, c.Counts)
	})
}

func TestReconcile_IgnoreCase(t *testing.T) {
	m := documentModel(t)
	auth := []*Record{newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": "Madrid", "status": 0})}
	idx := []*Record{newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": "madrid", "status": 0})}

	tests := []struct {
		name       string
		ignoreCase bool
		want       Counts
	}{
		{name: "case sensitive", ignoreCase: false, want: Counts{NotExact: 1}},
		{name: "case insensitive", ignoreCase: true, want: Counts{Exact: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := documentPolicy()
			policy.IgnoreCase = tt.ignoreCase

			c := Reconcile(auth, idx, policy, OutputAll)
			assert.Equal(t, tt.want, c.Counts)
		})
	}
}

func TestReconcile_NullHandling(t *testing.T) {
	m := documentModel(t)
	policy := documentPolicy()

	tests := []struct {
		name      string
		authTitle any
		idxTitle  any
		omitIdx   bool
		want      Counts
	}{
		{name: "both null", authTitle: nil, idxTitle: nil, want: Counts{Exact: 1}},
		{name: "both absent", authTitle: nil, omitIdx: true, want: Counts{Exact: 1}},
		{name: "null vs value", authTitle: nil, idxTitle: "A", want: Counts{NotExact: 1}},
		{name: "value vs absent", authTitle: "A", omitIdx: true, want: Counts{NotExact: 1}},
		{name: "empty string is not null", authTitle: "", idxTitle: nil, want: Counts{NotExact: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authAttrs := map[string]any{"document_id": 1, "company_id": 10, "status": 0, "title": tt.authTitle}
			idxAttrs := map[string]any{"document_id": 1, "company_id": 10, "status": 0}
			if !tt.omitIdx {
				idxAttrs["title"] = tt.idxTitle
			}

			c := Reconcile([]*Record{newRec(t, m, authAttrs)}, []*Record{newRec(t, m, idxAttrs)}, policy, OutputAll)
			assert.Equal(t, tt.want, c.Counts)
		})
	}
}

func TestReconcile_MultiValuedAttributes(t *testing.T) {
	m := documentModel(t)
	policy := &MatchPolicy{
		KeyAttributes:   []string{"document_id"},
		ExactAttributes: []string{"tags"},
	}

	tests := []struct {
		name string
		auth any
		idx  any
		want Counts
	}{
		{name: "same order", auth: []int64{1, 2, 3}, idx: []any{"1", "2", "3"}, want: Counts{Exact: 1}},
		{name: "different order", auth: []int64{3, 1, 2}, idx: []string{"1", "2", "3"}, want: Counts{Exact: 1}},
		{name: "duplicates collapse", auth: []string{"a", "a", "b"}, idx: []string{"b", "a"}, want: Counts{Exact: 1}},
		{name: "missing element", auth: []string{"a", "b"}, idx: []string{"a"}, want: Counts{NotExact: 1}},
		{name: "scalar equals singleton", auth: "a", idx: []string{"a"}, want: Counts{Exact: 1}},
		{name: "empty list is null", auth: []string{}, idx: nil, want: Counts{Exact: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := newRec(t, m, map[string]any{"document_id": 1, "tags": tt.auth})
			idx := newRec(t, m, map[string]any{"document_id": 1, "tags": tt.idx})

			c := Reconcile([]*Record{auth}, []*Record{idx}, policy, OutputAll)
			assert.Equal(t, tt.want, c.Counts)
		})
	}
}

func TestReconcile_AnomalyIsNotExact(t *testing.T) {
	m := documentModel(t)
	policy := documentPolicy()

	auth := newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": map[string]int{"x": 1}, "status": 0})
	idx := newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": map[string]int{"x": 1}, "status": 0})

	var c *Comparison
	assert.NotPanics(t, func() {
		c = Reconcile([]*Record{auth}, []*Record{idx}, policy, OutputAll)
	})
	require.Len(t, c.NotExact, 1)
	assert.Equal(t, []string{"title"}, c.NotExact[0].Attributes)
	assert.Equal(t, []string{"title"}, c.NotExact[0].Anomalies)

	err := c.NotExact[0].Err()
	require.ErrorIs(t, err, ErrComparisonAnomaly)
	assert.Equal(t, KindComparisonAnomaly, Classify(err))
	assert.Contains(t, err.Error(), "com.example.Document_PK_1")
}

func TestReconcile_OutputModesKeepCounts(t *testing.T) {
	m := documentModel(t)
	policy := documentPolicy()

	auth := []*Record{
		newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": "A", "status": 0}),
		newRec(t, m, map[string]any{"document_id": 2, "company_id": 10, "title": "B", "status": 0}),
		newRec(t, m, map[string]any{"document_id": 3, "company_id": 10, "title": "C", "status": 0}),
	}
	idx := []*Record{
		newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": "A", "status": 0}),
		newRec(t, m, map[string]any{"document_id": 2, "company_id": 10, "title": "b!", "status": 0}),
		newRec(t, m, map[string]any{"document_id": 4, "company_id": 10, "title": "D", "status": 0}),
	}

	c := Reconcile(auth, idx, policy, OutputOnlyIndex)

	assert.Empty(t, c.Exact)
	assert.Empty(t, c.NotExact)
	assert.Empty(t, c.OnlyAuthoritative)
	require.Len(t, c.OnlyIndex, 1)
	assert.Equal(t, "com.example.Document_PK_4", c.OnlyIndex[0].UID())
	assert.Equal(t, Counts{Exact: 1, NotExact: 1, OnlyAuthoritative: 1, OnlyIndex: 1}, c.Counts)
}

func TestReconcile_DuplicateSignaturesAreNotDropped(t *testing.T) {
	m := documentModel(t)
	// Matching on company only makes every record share one signature.
	policy := &MatchPolicy{KeyAttributes: []string{"company_id"}, ExactAttributes: []string{"title"}}

	auth := []*Record{
		newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": "A"}),
		newRec(t, m, map[string]any{"document_id": 2, "company_id": 10, "title": "B"}),
		newRec(t, m, map[string]any{"document_id": 3, "company_id": 10, "title": "C"}),
	}
	idx := []*Record{
		newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": "A"}),
	}

	c := Reconcile(auth, idx, policy, OutputAll)

	assert.Equal(t, 1, c.Counts.Exact)
	assert.Equal(t, 2, c.Counts.OnlyAuthoritative)
	assert.Equal(t, len(auth)+len(idx), 2*c.Counts.Exact+2*c.Counts.NotExact+c.Counts.OnlyAuthoritative+c.Counts.OnlyIndex)
}

func TestReconcile_DuplicateSignaturesPairInUIDOrder(t *testing.T) {
	m := documentModel(t)
	policy := &MatchPolicy{KeyAttributes: []string{"company_id"}, ExactAttributes: []string{"title"}}

	auth := []*Record{
		newRec(t, m, map[string]any{"document_id": 3, "company_id": 10, "title": "C"}),
		newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": "A"}),
	}
	idx := []*Record{
		newRec(t, m, map[string]any{"document_id": 1, "company_id": 10, "title": "A"}),
		newRec(t, m, map[string]any{"document_id": 3, "company_id": 10, "title": "C"}),
	}

	c := Reconcile(auth, idx, policy, OutputAll)

	assert.Equal(t, Counts{Exact: 2}, c.Counts)
	require.Len(t, c.Exact, 2)
	assert.Equal(t, "com.example.Document_PK_1", c.Exact[0].Authoritative.UID())
}

func TestReconcile_EveryRecordInExactlyOneBucket(t *testing.T) {
	m := documentModel(t)
	policy := documentPolicy()
	rng := rand.New(rand.NewSource(42))

	var auth, idx []*Record
	for i := 0; i < 200; i++ {
		title := "t"
		if rng.Intn(4) == 0 {
			title = "other"
		}
		if rng.Intn(5) != 0 {
			auth = append(auth, newRec(t, m, map[string]any{"document_id": i, "company_id": 10, "title": "t", "status": 0}))
		}
		if rng.Intn(5) != 0 {
			idx = append(idx, newRec(t, m, map[string]any{"document_id": i, "company_id": 10, "title": title, "status": 0}))
		}
	}

	c := Reconcile(auth, idx, policy, OutputAll)

	seenAuth := map[string]int{}
	seenIdx := map[string]int{}
	for _, p := range c.Exact {
		seenAuth[p.Authoritative.UID()]++
		seenIdx[p.Index.UID()]++
	}
	for _, p := range c.NotExact {
		seenAuth[p.Authoritative.UID()]++
		seenIdx[p.Index.UID()]++
	}
	for _, r := range c.OnlyAuthoritative {
		seenAuth[r.UID()]++
	}
	for _, r := range c.OnlyIndex {
		seenIdx[r.UID()]++
	}

	assert.Len(t, seenAuth, len(auth))
	assert.Len(t, seenIdx, len(idx))
	for uid, n := range seenAuth {
		assert.Equal(t, 1, n, uid)
	}
	for uid, n := range seenIdx {
		assert.Equal(t, 1, n, uid)
	}
	assert.Equal(t, len(c.Exact), c.Counts.Exact)
	assert.Equal(t, len(c.NotExact), c.Counts.NotExact)
}

func TestReconcile_Idempotent(t *testing.T) {
	m := documentModel(t)
	policy := documentPolicy()

	var auth, idx []*Record
	for i := 0; i < 50; i++ {
		auth = append(auth, newRec(t, m, map[string]any{"document_id": i, "company_id": 10, "title": "x", "status": i % 3}))
		idx = append(idx, newRec(t, m, map[string]any{"document_id": i + 5, "company_id": 10, "title": "x", "status": 0}))
	}

	first := Reconcile(auth, idx, policy, OutputAll)

	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(auth), func(i, j int) { auth[i], auth[j] = auth[j], auth[i] })
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	second := Reconcile(auth, idx, policy, OutputAll)

	assert.Equal(t, first.Counts, second.Counts)
	require.Equal(t, len(first.NotExact), len(second.NotExact))
	for i := range first.NotExact {
		assert.Equal(t, first.NotExact[i].Authoritative.UID(), second.NotExact[i].Authoritative.UID())
		assert.Equal(t, first.NotExact[i].Attributes, second.NotExact[i].Attributes)
	}
	for i := range first.OnlyIndex {
		assert.Equal(t, first.OnlyIndex[i].UID(), second.OnlyIndex[i].UID())
	}
}
