package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"index-checker/core/reconcile"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_UnitOutcomes(t *testing.T) {
	c := New()
	const model = "com.example.Document"

	c.UnitStarted(model)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unitsInFlight.WithLabelValues(model)))

	c.UnitFinished(model, &reconcile.Comparison{
		Model:  model,
		Counts: reconcile.Counts{Exact: 3, OnlyIndex: 1},
	}, false, 10*time.Millisecond)

	c.UnitStarted(model)
	c.UnitFinished(model, &reconcile.Comparison{
		Model: model,
		Error: &reconcile.UnitError{Kind: reconcile.KindStoreUnavailable, Message: "down"},
	}, false, time.Millisecond)

	c.UnitStarted(model)
	c.UnitFinished(model, nil, true, 0)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.unitsInFlight.WithLabelValues(model)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unitsTotal.WithLabelValues(model, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unitsTotal.WithLabelValues(model, reconcile.KindStoreUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unitsTotal.WithLabelValues(model, OutcomeSkipped)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.recordsTotal.WithLabelValues(model, "exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recordsTotal.WithLabelValues(model, "only_index")))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.UnitStarted("com.example.Document")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `indexcheck_units_in_flight{model="com.example.Document"} 1`)
}
