package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"index-checker/core/reconcile"

	"go.uber.org/zap"
)

// Folder folds related table rows into authoritative records.
type Folder struct {
	store *Store
}

// Related returns the related-data folder backed by this store.
func (s *Store) Related() *Folder {
	return &Folder{store: s}
}

// Fold implements reconcile.RelatedDataFolder. For every owner record the
// first related row in OrderBy order is kept; its attributes are copied
// onto the record under the entry's prefix. Owners whose related row fails
// the entry's filter are dropped.
func (f *Folder) Fold(ctx context.Context, unit reconcile.Unit, related []reconcile.RelatedData, records map[string]*reconcile.Record) (map[string]*reconcile.Record, error) {
	out := records
	for _, rd := range related {
		var err error
		out, err = f.foldOne(ctx, unit, rd, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f *Folder) foldOne(ctx context.Context, unit reconcile.Unit, rd reconcile.RelatedData, records map[string]*reconcile.Record) (map[string]*reconcile.Record, error) {
	filter, err := reconcile.ParseFilter(rd.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: related %s: %v", reconcile.ErrConfiguration, rd.Table, err)
	}

	join := strings.ToLower(rd.JoinAttribute)
	columns := []string{join}
	seen := map[string]struct{}{join: {}}
	for _, attr := range append(lowerAll(rd.Attributes), filter.Attributes()...) {
		if _, ok := seen[attr]; ok {
			continue
		}
		seen[attr] = struct{}{}
		columns = append(columns, attr)
	}
	if err := checkIdentifiers(append([]string{rd.Table}, columns...)...); err != nil {
		return nil, err
	}
	order := join
	if rd.OrderBy != "" {
		if !orderByPattern.MatchString(strings.TrimSpace(rd.OrderBy)) {
			return nil, fmt.Errorf("%w: related %s: invalid order_by %q", reconcile.ErrConfiguration, rd.Table, rd.OrderBy)
		}
		order += ", " + strings.TrimSpace(rd.OrderBy)
	}

	owners := make([]string, 0, len(records))
	for _, rec := range records {
		owners = append(owners, rec.PrimaryKey())
	}
	sort.Strings(owners)

	first := make(map[string]map[string]any, len(owners))
	for _, batch := range chunk(owners, f.store.opts.BatchSize) {
		rows, err := scanRows(f.store.db.WithContext(ctx).
			Table(rd.Table).
			Select(columns).
			Where(join+" IN ?", batch).
			Order(order))
		if err != nil {
			return nil, classifyError(rd.Table, err)
		}
		for _, row := range rows {
			owner := reconcile.CanonicalString(row[join])
			if _, ok := first[owner]; !ok {
				first[owner] = row
			}
		}
	}

	out := make(map[string]*reconcile.Record, len(records))
	dropped := 0
	for uid, rec := range records {
		row := first[rec.PrimaryKey()]
		if filter != nil && !filter.Matches(row) {
			dropped++
			continue
		}
		for _, attr := range lowerAll(rd.Attributes) {
			if err := rec.Set(rd.Prefix+attr, row[attr]); err != nil {
				return nil, err
			}
		}
		out[uid] = rec
	}

	if dropped > 0 {
		f.store.logger.Debug("Dropped records by related data filter",
			zap.String("model", unit.Model.Name()),
			zap.String("related", rd.Table),
			zap.Int("dropped", dropped),
		)
	}
	return out, nil
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
