package indexcheck

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"index-checker/core/reconcile"
	"index-checker/core/storage"
	"index-checker/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func storageConfig() storage.Config {
	return storage.Config{Bucket: "index-check", Prefix: "reports/"}
}

func sampleComparisons() []*reconcile.Comparison {
	return []*reconcile.Comparison{
		{Model: "com.example.B", CompanyID: 1, Groups: reconcile.AllGroups(), Counts: reconcile.Counts{Exact: 2}},
		{Model: "com.example.A", CompanyID: 2, Groups: reconcile.AllGroups(), Counts: reconcile.Counts{OnlyIndex: 1}},
		{Model: "com.example.A", CompanyID: 1, Groups: reconcile.AllGroups(),
			Error: &reconcile.UnitError{Kind: reconcile.KindQuery, Message: "bad filter"}},
	}
}

func TestNewReport(t *testing.T) {
	started := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	report := NewReport(started, reconcile.OutputDiscrepancies, sampleComparisons(), nil)

	assert.True(t, strings.HasPrefix(report.ID, "20261017T093000Z-"))
	assert.Equal(t, "report-"+report.ID+".json", report.Name())

	require.Len(t, report.Comparisons, 3)
	assert.Equal(t, "com.example.A", report.Comparisons[0].Model)
	assert.Equal(t, int64(1), report.Comparisons[0].CompanyID)
	assert.Equal(t, int64(2), report.Comparisons[1].CompanyID)
	assert.Equal(t, "com.example.B", report.Comparisons[2].Model)

	assert.Equal(t, 3, report.Summary.Units)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Consistent)
	assert.Equal(t, map[string]int{reconcile.KindQuery: 1}, report.Summary.Errors)
}

func TestReports_SaveToDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	reports := NewReports(dir, nil, storageConfig(), 0, zap.NewNop())
	report := NewReport(time.Now().UTC(), reconcile.OutputAll, sampleComparisons(), nil)

	name, err := reports.Save(context.Background(), report)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"model": "com.example.A"`)
	assert.Contains(t, string(data), `"groups": "all"`)

	loaded, err := reports.Load(context.Background(), name)
	require.NoError(t, err)
	assert.Equal(t, data, loaded)
}

func TestReports_Disabled(t *testing.T) {
	reports := NewReports("", nil, storageConfig(), 0, nil)

	_, err := reports.Save(context.Background(), NewReport(time.Now().UTC(), reconcile.OutputAll, nil, nil))
	require.NoError(t, err)

	list, err := reports.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = reports.Load(context.Background(), "report-x.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReports_Upload(t *testing.T) {
	client := mocks.NewClient(t)
	reports := NewReports("", client, storageConfig(), 2, zap.NewNop())
	report := NewReport(time.Now().UTC(), reconcile.OutputAll, sampleComparisons(), nil)

	client.On("BucketExists", mock.Anything, "index-check").Return(false, nil)
	client.On("MakeBucket", mock.Anything, "index-check", mock.Anything).Return(nil)
	client.On("PutObject", mock.Anything, "index-check", "reports/"+report.Name(), mock.Anything, mock.Anything, mock.MatchedBy(func(opts minio.PutObjectOptions) bool {
		return opts.ContentType == "application/json"
	})).Return(minio.UploadInfo{}, nil)

	listed := mocks.Listing(
		"reports/report-20260101T000000Z-a.json",
		"reports/report-20260301T000000Z-c.json",
		"reports/report-20260201T000000Z-b.json",
	)
	client.On("ListObjects", mock.Anything, "index-check", minio.ListObjectsOptions{Prefix: "reports/report-"}).Return(listed)

	var removed []string
	client.On("RemoveObjects", mock.Anything, "index-check", mock.Anything, mock.Anything).Run(mocks.Drain(&removed)).Return(nil)

	name, err := reports.Save(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, report.Name(), name)
	assert.Equal(t, []string{"reports/report-20260101T000000Z-a.json"}, removed)
}

func TestReports_LoadFromBucket(t *testing.T) {
	client := new(mocks.Client)
	reports := NewReports("", client, storageConfig(), 0, zap.NewNop())

	client.On("GetObject", mock.Anything, "index-check", "reports/report-1.json", mock.Anything).
		Return(io.NopCloser(strings.NewReader(`{"id":"1"}`)), nil)

	data, err := reports.Load(context.Background(), "report-1.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(data))

	_, err = reports.Load(context.Background(), "../secrets.json")
	assert.ErrorIs(t, err, reconcile.ErrConfiguration)
}
