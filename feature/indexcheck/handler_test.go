package indexcheck

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestApp(t *testing.T) (*fiber.App, *Reports) {
	t.Helper()
	reports := NewReports(t.TempDir(), nil, storageConfig(), 0, zap.NewNop())
	svc, _ := newTestService(t, reports)

	app := fiber.New()
	feature := NewFeature(svc)
	require.True(t, feature.IsEnabled())
	require.NoError(t, feature.Load(app))
	return app, reports
}

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestHandleModels(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/indexcheck/models", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decode(t, resp.Body)
	models := body["models"].([]any)
	require.Len(t, models, 1)
	model := models[0].(map[string]any)
	assert.Equal(t, blogsModel, model["name"])
	assert.Equal(t, "entry_id", model["primary_key"])
	assert.Len(t, body["errors"], 1)
}

func TestHandleRun(t *testing.T) {
	app, reports := setupTestApp(t)

	req := httptest.NewRequest("POST", "/indexcheck/run", strings.NewReader(`{"models":["`+blogsModel+`"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 10000)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body := decode(t, resp.Body)
	summary := body["summary"].(map[string]any)
	assert.Equal(t, 1.0, summary["units"])
	counts := summary["counts"].(map[string]any)
	assert.Equal(t, 1.0, counts["only_index"])
	assert.Equal(t, "not-exact,only-authoritative,only-index", body["output"])

	// The report is saved and can be fetched back.
	resp, err = app.Test(httptest.NewRequest("GET", "/indexcheck/reports", nil))
	require.NoError(t, err)
	list := decode(t, resp.Body)["reports"].([]any)
	require.Len(t, list, 1)
	name := list[0].(map[string]any)["name"].(string)
	assert.Equal(t, "report-"+body["id"].(string)+".json", name)

	resp, err = app.Test(httptest.NewRequest("GET", "/indexcheck/reports/"+name, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, body["id"], decode(t, resp.Body)["id"])

	saved, err := reports.List(req.Context())
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestHandleRun_Errors(t *testing.T) {
	app, _ := setupTestApp(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{"models":`, 400},
		{"unknown model", `{"models":["com.example.Nope"]}`, 400},
		{"unknown output", `{"output":"sideways"}`, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/indexcheck/run", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, 10000)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, decode(t, resp.Body)["error"])
		})
	}
}

func TestHandleRepair_DefaultsToDryRun(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest("POST", "/indexcheck/repair", strings.NewReader(`{"models":["`+blogsModel+`"],"confirm":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 10000)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body := decode(t, resp.Body)
	assert.Equal(t, true, body["dry_run"])
	assert.Equal(t, 0.0, body["executed"])
	summary := body["plan"].(map[string]any)["summary"].(map[string]any)
	assert.Equal(t, 2.0, summary["reindex_actions"])
	assert.Equal(t, 1.0, summary["delete_actions"])
}

func TestHandleIndexStatus(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/indexcheck/index", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decode(t, resp.Body)
	assert.Equal(t, true, body["reachable"])
	assert.Equal(t, -1.0, body["documents"])
}

func TestHandleTermValues_Unsupported(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/indexcheck/index/terms/entryClassName", nil))
	require.NoError(t, err)
	assert.Equal(t, 501, resp.StatusCode)
}

func TestHandleGetReport_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/indexcheck/reports/report-missing.json", 404},
		{"/indexcheck/reports/passwd", 400},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tt.status, resp.StatusCode, tt.path)
	}
}
