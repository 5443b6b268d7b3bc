package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"index-checker/core/reconcile"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
	orderByPattern    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_$]*)(\s+(?i:asc|desc))?$`)
)

// Options tunes the store adapter.
type Options struct {
	// GroupChunkSize is the number of group ids per unit. Zero keeps every
	// group of a company in a single unit.
	GroupChunkSize int
	// GroupCacheTTL is how long company group lists are reused. Zero disables caching.
	GroupCacheTTL time.Duration
	// BatchSize bounds the number of values in one IN clause.
	BatchSize int
}

// DefaultBatchSize is used when Options.BatchSize is not set.
const DefaultBatchSize = 1000

// Store reads authoritative records through gorm.
type Store struct {
	db     *gorm.DB
	opts   Options
	logger *zap.Logger
	groups *groupCache
}

// New creates a store adapter on top of an open connection.
func New(db *gorm.DB, opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Store{
		db:     db,
		opts:   opts,
		logger: logger,
		groups: newGroupCache(opts.GroupCacheTTL),
	}
}

// Fetch implements reconcile.StoreAdapter.
func (s *Store) Fetch(ctx context.Context, req reconcile.StoreRequest) (map[string]*reconcile.Record, error) {
	m := req.Model
	if m == nil {
		return nil, fmt.Errorf("%w: fetch without model", reconcile.ErrConfiguration)
	}
	out := make(map[string]*reconcile.Record)
	if req.Groups.Empty() {
		return out, nil
	}

	columns := m.Attributes()
	if req.VersionAttribute != "" && !m.HasAttribute(req.VersionAttribute) {
		columns = append(columns, strings.ToLower(req.VersionAttribute))
	}
	if err := checkIdentifiers(append([]string{m.Table()}, columns...)...); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Table(m.Table()).Select(columns)
	caps := m.Capabilities()
	if caps.CompanyScoped {
		q = q.Where(reconcile.AttrCompanyID+" = ?", req.CompanyID)
	}
	if caps.GroupScoped && !req.Groups.All() {
		q = q.Where(reconcile.AttrGroupID+" IN ?", req.Groups.IDs())
	}
	if req.Filter != nil {
		clause, args, err := filterClause(req.Filter)
		if err != nil {
			return nil, err
		}
		q = q.Where(clause, args...)
	}

	rows, err := scanRows(q.Order(m.PrimaryKey()))
	if err != nil {
		return nil, classifyError(m.Table(), err)
	}

	log := s.scoped(ctx)
	var opts []reconcile.RecordOption
	if req.VersionAttribute != "" {
		opts = append(opts, reconcile.WithVersion(req.VersionAttribute))
	}
	for _, row := range rows {
		rec, err := reconcile.NewRecord(m, row, opts...)
		if err != nil {
			log.Warn("Skipping row", zap.String("model", m.Name()), zap.Error(err))
			continue
		}
		if _, dup := out[rec.UID()]; dup {
			log.Warn("Duplicate uid in store", zap.String("uid", rec.UID()))
			continue
		}
		out[rec.UID()] = rec
	}

	log.Debug("Fetched authoritative records",
		zap.String("model", m.Name()),
		zap.Int64("company_id", req.CompanyID),
		zap.Stringer("groups", req.Groups),
		zap.Int("count", len(out)),
	)
	return out, nil
}

// scoped tags the logger with the unit the fetch runs for.
func (s *Store) scoped(ctx context.Context) *zap.Logger {
	if scope, ok := reconcile.ScopeFromContext(ctx); ok {
		return s.logger.With(zap.String("unit_id", scope.UnitID))
	}
	return s.logger
}

// scanRows runs the query and returns each row as a column map. Byte slices
// become strings.
func scanRows(q *gorm.DB) ([]map[string]any, error) {
	rows, err := q.Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[strings.ToLower(col)] = string(b)
				continue
			}
			row[strings.ToLower(col)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// filterClause renders a filter as one OR expression. A negated condition
// also matches NULL, like Filter.Matches does.
func filterClause(f *reconcile.Filter) (string, []any, error) {
	parts := make([]string, 0, len(f.Conditions))
	args := make([]any, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		if err := checkIdentifiers(c.Attribute); err != nil {
			return "", nil, err
		}
		if c.Negate {
			parts = append(parts, fmt.Sprintf("%s IS NULL OR %s <> ?", c.Attribute, c.Attribute))
		} else {
			parts = append(parts, c.Attribute+" = ?")
		}
		args = append(args, c.Value)
	}
	return strings.Join(parts, " OR "), args, nil
}

func checkIdentifiers(names ...string) error {
	for _, name := range names {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("%w: invalid identifier %q", reconcile.ErrConfiguration, name)
		}
	}
	return nil
}

// classifyError maps driver failures onto the reconcile taxonomy.
func classifyError(table string, err error) error {
	var netErr *net.OpError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("querying %s: %w", table, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.As(err, &netErr):
		return fmt.Errorf("%w: querying %s: %v", reconcile.ErrStoreUnavailable, table, err)
	default:
		return fmt.Errorf("%w: querying %s: %v", reconcile.ErrQuery, table, err)
	}
}

// chunk splits values into slices of at most size elements.
func chunk[T any](values []T, size int) [][]T {
	if size <= 0 || len(values) <= size {
		if len(values) == 0 {
			return nil
		}
		return [][]T{values}
	}
	var out [][]T
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		out = append(out, values[start:end])
	}
	return out
}
