package indexcheck

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"index-checker/core/reconcile"
	"index-checker/core/storage"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const (
	reportPrefix = "report-"
	reportExt    = ".json"
)

// Report is the saved result of one run.
type Report struct {
	ID          string                  `json:"id"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Output      string                  `json:"output"`
	Summary     reconcile.Summary       `json:"summary"`
	// Interrupted is set when the run was cancelled before every unit finished.
	Interrupted bool                    `json:"interrupted,omitempty"`
	ModelErrors []ModelError            `json:"model_errors,omitempty"`
	Comparisons []*reconcile.Comparison `json:"comparisons"`
}

// NewReport builds a report. Comparisons are sorted by model, company and
// group scope so identical runs produce identical reports.
func NewReport(started time.Time, modes reconcile.OutputModes, comparisons []*reconcile.Comparison, failed []ModelError) *Report {
	sorted := append([]*reconcile.Comparison(nil), comparisons...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Model != b.Model {
			return a.Model < b.Model
		}
		if a.CompanyID != b.CompanyID {
			return a.CompanyID < b.CompanyID
		}
		return a.Groups.String() < b.Groups.String()
	})
	return &Report{
		ID:          started.Format("20060102T150405Z") + "-" + uuid.NewString()[:8],
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
		Output:      modes.String(),
		Summary:     reconcile.Summarize(sorted),
		ModelErrors: failed,
		Comparisons: sorted,
	}
}

// Name returns the file name of the report.
func (r *Report) Name() string { return reportPrefix + r.ID + reportExt }

// ReportInfo describes a saved report.
type ReportInfo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Reports saves run reports to a directory and, when a storage client is
// set, uploads them to a bucket.
type Reports struct {
	dir       string
	client    storage.Client
	bucket    string
	prefix    string
	region    string
	retention int
	logger    *zap.Logger
}

// NewReports creates a report store. An empty dir and a nil client make
// Save a no-op.
func NewReports(dir string, client storage.Client, cfg storage.Config, retention int, logger *zap.Logger) *Reports {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reports{
		dir:       dir,
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		region:    cfg.Region,
		retention: retention,
		logger:    logger,
	}
}

// Save writes the report and returns its name.
func (r *Reports) Save(ctx context.Context, report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	name := report.Name()

	if r.dir != "" {
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create report directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(r.dir, name), data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write report: %w", err)
		}
	}

	if r.client != nil {
		if err := storage.EnsureBucket(ctx, r.client, r.bucket, r.region); err != nil {
			return "", err
		}
		_, err := r.client.PutObject(ctx, r.bucket, r.prefix+name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
		if err != nil {
			return "", fmt.Errorf("failed to upload report %s: %w", name, err)
		}
		if err := r.prune(ctx); err != nil {
			r.logger.Warn("Failed to prune old reports", zap.Error(err))
		}
	}

	r.logger.Info("Report saved", zap.String("name", name), zap.Int("bytes", len(data)))
	return name, nil
}

// List returns the saved reports, newest first. The bucket is listed when a
// client is set, the directory otherwise.
func (r *Reports) List(ctx context.Context) ([]ReportInfo, error) {
	var out []ReportInfo
	if r.client != nil {
		for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{Prefix: r.prefix + reportPrefix}) {
			if obj.Err != nil {
				return nil, fmt.Errorf("failed to list reports: %w", obj.Err)
			}
			out = append(out, ReportInfo{
				Name:         strings.TrimPrefix(obj.Key, r.prefix),
				Size:         obj.Size,
				LastModified: obj.LastModified,
			})
		}
	} else if r.dir != "" {
		entries, err := os.ReadDir(r.dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to list reports: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !validName(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, ReportInfo{Name: e.Name(), Size: info.Size(), LastModified: info.ModTime()})
		}
	}
	// Names start with the run timestamp.
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Load returns the raw JSON of a saved report.
func (r *Reports) Load(ctx context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: invalid report name %q", reconcile.ErrConfiguration, name)
	}
	if r.client != nil {
		obj, err := r.client.GetObject(ctx, r.bucket, r.prefix+name, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to get report %s: %w", name, err)
		}
		defer obj.Close()
		return io.ReadAll(obj)
	}
	if r.dir == "" {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(filepath.Join(r.dir, name))
}

// prune removes the oldest uploaded reports beyond the retention count.
func (r *Reports) prune(ctx context.Context) error {
	if r.retention <= 0 {
		return nil
	}
	var objects []minio.ObjectInfo
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{Prefix: r.prefix + reportPrefix}) {
		if obj.Err != nil {
			return obj.Err
		}
		objects = append(objects, obj)
	}
	if len(objects) <= r.retention {
		return nil
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	stale := objects[r.retention:]

	objectsCh := make(chan minio.ObjectInfo, len(stale))
	for _, obj := range stale {
		objectsCh <- obj
	}
	close(objectsCh)

	errorCount := 0
	for e := range r.client.RemoveObjects(ctx, r.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		r.logger.Warn("Failed to remove report", zap.String("key", e.ObjectName), zap.Error(e.Err))
		errorCount++
	}
	r.logger.Info("Pruned reports", zap.Int("removed", len(stale)-errorCount))
	return nil
}

func validName(name string) bool {
	return strings.HasPrefix(name, reportPrefix) &&
		strings.HasSuffix(name, reportExt) &&
		filepath.Base(name) == name
}
