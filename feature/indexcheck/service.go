package indexcheck

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"index-checker/core/database"
	"index-checker/core/index"
	"index-checker/core/policy"
	"index-checker/core/reconcile"
	"index-checker/core/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options are the run defaults taken from configuration.
type Options struct {
	Models      []string
	Companies   []int64
	Concurrency int
	Modes       reconcile.OutputModes
}

// Dependencies are the collaborators of the service. Index, Observer and
// Reports are optional.
type Dependencies struct {
	DB       *gorm.DB
	Store    *store.Store
	Index    *index.Client
	Resolver *policy.Resolver
	Observer reconcile.Observer
	Reports  *Reports
	Logger   *zap.Logger
}

// Service handles index check operations.
type Service struct {
	db       *gorm.DB
	store    *store.Store
	index    *index.Client
	reader   reconcile.IndexAdapter
	resolver *policy.Resolver
	observer reconcile.Observer
	reports  *Reports
	opts     Options
	logger   *zap.Logger
}

// NewService creates a new index check service.
func NewService(deps Dependencies, opts Options) (*Service, error) {
	if deps.DB == nil || deps.Store == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("%w: index check needs a database, a store and a policy resolver", reconcile.ErrConfiguration)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		db:       deps.DB,
		store:    deps.Store,
		index:    deps.Index,
		resolver: deps.Resolver,
		observer: deps.Observer,
		reports:  deps.Reports,
		opts:     opts,
		logger:   logger,
	}
	if deps.Index != nil {
		reader, err := deps.Index.Reader()
		if err != nil {
			return nil, err
		}
		s.reader = reader
	}
	return s, nil
}

// RunRequest selects what a run covers. Zero values fall back to the
// service options.
type RunRequest struct {
	Models      []string `json:"models"`
	Companies   []int64  `json:"companies"`
	Output      string   `json:"output"`
	Concurrency int      `json:"concurrency"`
}

// RepairRequest runs a check and plans repairs from its result.
type RepairRequest struct {
	RunRequest
	DryRun  bool `json:"dry_run"`
	Reindex bool `json:"reindex"`
	Delete  bool `json:"delete"`
	Confirm bool `json:"confirm"`
}

// RepairResult is the outcome of a repair.
type RepairResult struct {
	Report   *Report               `json:"report"`
	Plan     *reconcile.RepairPlan `json:"plan"`
	Executed int                   `json:"executed"`
	DryRun   bool                  `json:"dry_run"`
}

// ModelError records a model that could not be described.
type ModelError struct {
	Model string `json:"model"`
	Error string `json:"error"`
}

// IndexStatus describes the configured index.
type IndexStatus struct {
	Index     string `json:"index"`
	Reader    string `json:"reader"`
	Reachable bool   `json:"reachable"`
	Documents int64  `json:"documents"`
	Error     string `json:"error,omitempty"`
}

// Models describes every configured model that is neither ignored nor
// unindexed. Models whose table cannot be described are returned as errors
// and left out; an unreachable database fails the whole call.
func (s *Service) Models(ctx context.Context, names []string) ([]*reconcile.ModelDescriptor, []ModelError, error) {
	table := s.resolver.Table()
	if len(names) == 0 {
		names = s.opts.Models
	}
	if len(names) == 0 {
		names = table.ModelNames()
	} else {
		for _, name := range names {
			if _, ok := table.Entry(name); !ok {
				return nil, nil, fmt.Errorf("%w: unknown model %s", reconcile.ErrConfiguration, name)
			}
		}
	}

	db := s.db.WithContext(ctx)
	var (
		models []*reconcile.ModelDescriptor
		failed []ModelError
	)
	for _, name := range names {
		if table.Ignored(name) {
			continue
		}
		m, err := s.describe(db, name)
		if errors.Is(err, reconcile.ErrStoreUnavailable) {
			return nil, nil, err
		}
		if err != nil {
			s.logger.Warn("Skipping model", zap.String("model", name), zap.Error(err))
			failed = append(failed, ModelError{Model: name, Error: err.Error()})
			continue
		}
		models = append(models, m)
	}
	return models, failed, nil
}

func (s *Service) describe(db *gorm.DB, name string) (*reconcile.ModelDescriptor, error) {
	tableName := defaultTableName(name)
	if e, ok := s.resolver.Table().Entry(name); ok && e.Table != "" {
		tableName = e.Table
	}
	schema, err := database.Introspect(db, tableName)
	if err != nil {
		return nil, err
	}
	overlay := s.resolver.Overlay(name, reconcile.IntrospectCapabilities(schema.Columns))
	return reconcile.BuildModelDescriptor(name, schema, overlay)
}

// Run reconciles the requested models and saves the report when reports
// are configured. A cancelled run returns the units completed so far with
// Interrupted set.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Report, error) {
	started := time.Now().UTC()

	modes := s.opts.Modes
	if req.Output != "" {
		parsed, err := reconcile.ParseOutputModes(req.Output)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", reconcile.ErrConfiguration, err)
		}
		modes = parsed
	}
	if modes == 0 {
		modes = reconcile.OutputDiscrepancies
	}
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.opts.Concurrency
	}

	models, failed, err := s.Models(ctx, req.Models)
	if err != nil {
		return nil, err
	}

	companies := req.Companies
	if len(companies) == 0 {
		companies = s.opts.Companies
	}
	if len(companies) == 0 {
		if companies, err = s.store.Companies(ctx); err != nil {
			return nil, err
		}
	}
	scopes, err := s.store.GroupScopes(ctx, companies)
	if err != nil {
		return nil, err
	}

	env := &reconcile.Env{
		Store:      s.store,
		Index:      s.reader,
		Enrichment: s.store.Permissions(),
		Related:    s.store.Related(),
		Logger:     s.logger,
	}

	orch := reconcile.NewOrchestrator(env, s.resolver, s.observer, s.logger)
	comparisons := reconcile.Collect(orch.Run(ctx, reconcile.RunRequest{
		Models:      models,
		Companies:   companies,
		GroupScopes: scopes,
		Modes:       modes,
		Concurrency: concurrency,
	}))

	report := NewReport(started, modes, comparisons, failed)
	fields := []zap.Field{
		zap.String("report", report.ID),
		zap.Int("units", report.Summary.Units),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("discrepancies", report.Summary.Counts.Discrepancies()),
	}
	if err := ctx.Err(); err != nil {
		// Completed units are kept; the report says the run is incomplete.
		report.Interrupted = true
		s.logger.Warn("Index check interrupted", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("Index check finished", fields...)
	}

	if s.reports != nil {
		if _, err := s.reports.Save(context.WithoutCancel(ctx), report); err != nil {
			s.logger.Error("Failed to save report", zap.String("report", report.ID), zap.Error(err))
		}
	}
	return report, nil
}

// Repair runs a check and applies the resulting plan. Nothing is written
// unless the request is confirmed and not a dry run.
func (s *Service) Repair(ctx context.Context, req RepairRequest) (*RepairResult, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: repairs need an index", reconcile.ErrConfiguration)
	}
	opts := reconcile.RepairOptions{
		DryRun:    req.DryRun,
		Reindex:   req.Reindex,
		Delete:    req.Delete,
		Confirmed: req.Confirm,
	}
	if !opts.Reindex && !opts.Delete {
		opts.Reindex, opts.Delete = true, true
	}

	// Planning needs the records of every discrepancy bucket.
	run := req.RunRequest
	run.Output = reconcile.OutputDiscrepancies.String()

	report, err := s.Run(ctx, run)
	if err != nil {
		return nil, err
	}
	if report.Interrupted {
		return &RepairResult{Report: report, DryRun: true}, fmt.Errorf("repair not planned, check interrupted after %d units: %w", report.Summary.Units, ctx.Err())
	}
	plan := reconcile.BuildPlan(report.Comparisons, opts)

	result := &RepairResult{Report: report, Plan: plan, DryRun: opts.DryRun || !opts.Confirmed}
	executed, err := reconcile.ApplyPlan(ctx, s.index.Mutator(s.resolver), plan, opts)
	result.Executed = executed
	if err != nil {
		return result, err
	}
	s.logger.Info("Repair finished",
		zap.Int("reindex", plan.Summary.ReindexActions),
		zap.Int("delete", plan.Summary.DeleteActions),
		zap.Int("executed", executed),
		zap.Bool("dry_run", result.DryRun))
	return result, nil
}

// IndexStatus pings the index and counts its documents.
func (s *Service) IndexStatus(ctx context.Context) (*IndexStatus, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: no index configured", reconcile.ErrConfiguration)
	}
	cfg := s.index.Config()
	status := &IndexStatus{Index: cfg.Index, Reader: cfg.Reader, Documents: reconcile.DocumentCountUnknown}
	if err := s.index.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Reachable = true

	count, err := s.reader.DocumentCount(ctx)
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Documents = count
	return status, nil
}

// TermValues lists the distinct values of an index field, sorted.
func (s *Service) TermValues(ctx context.Context, field string) ([]string, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("%w: no index configured", reconcile.ErrConfiguration)
	}
	values, err := s.reader.TermValues(ctx, field)
	if err != nil {
		return nil, err
	}
	sort.Strings(values)
	return values, nil
}

// Reports returns the report store, or nil.
func (s *Service) Reports() *Reports { return s.reports }

// defaultTableName derives a table name from the simple model name:
// com.liferay.document.library.kernel.model.DLFileEntry maps to dl_file_entry.
func defaultTableName(model string) string {
	if i := strings.LastIndexByte(model, '.'); i >= 0 {
		model = model[i+1:]
	}
	if i := strings.IndexByte(model, '#'); i >= 0 {
		model = model[:i]
	}
	runes := []rune(model)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
