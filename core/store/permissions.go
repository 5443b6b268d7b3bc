package store

import (
	"context"
	"sort"

	"index-checker/core/reconcile"
	"index-checker/core/utils"

	"go.uber.org/zap"
)

// AttrRoleIDs is the computed attribute holding the roles allowed to view a record.
const AttrRoleIDs = reconcile.AttrRoleIDs

const (
	permissionTable = "resource_permission"
	// scopeIndividual selects permissions granted on a single entity.
	scopeIndividual = 4
)

// Permissions enriches records with the roles that may view them.
type Permissions struct {
	store *Store
}

// Permissions returns the enrichment provider backed by this store.
func (s *Store) Permissions() *Permissions {
	return &Permissions{store: s}
}

type permissionRow struct {
	PrimKey string `gorm:"column:prim_key"`
	RoleID  int64  `gorm:"column:role_id"`
}

// ForUnit implements reconcile.EnrichmentProvider. Role ids for every record
// of the unit are loaded up front, in batches.
func (p *Permissions) ForUnit(ctx context.Context, unit reconcile.Unit, records map[string]*reconcile.Record) (reconcile.Enricher, error) {
	e := &roleEnricher{
		resourced: unit.Model.Capabilities().ResourceIdentity,
		roles:     make(map[string][]int64),
	}

	keys := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		key := e.primKey(rec)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, batch := range chunk(keys, p.store.opts.BatchSize) {
		var rows []permissionRow
		err := p.store.db.WithContext(ctx).
			Table(permissionTable).
			Select([]string{"prim_key", "role_id"}).
			Where("company_id = ? AND name = ? AND scope = ? AND view_action_id = ?",
				unit.CompanyID, unit.Model.Name(), scopeIndividual, true).
			Where("prim_key IN ?", batch).
			Order("prim_key, role_id").
			Scan(&rows).Error
		if err != nil {
			return nil, classifyError(permissionTable, err)
		}
		for _, row := range rows {
			e.roles[row.PrimKey] = append(e.roles[row.PrimKey], row.RoleID)
		}
	}

	p.store.logger.Debug("Loaded view permissions",
		zap.String("model", unit.Model.Name()),
		zap.Int64("company_id", unit.CompanyID),
		zap.Int("entities", len(e.roles)),
	)
	return e, nil
}

type roleEnricher struct {
	resourced bool
	roles     map[string][]int64
}

// primKey is the permission key of a record: the resource primary key for
// models with a resource identity, the primary key otherwise.
func (e *roleEnricher) primKey(rec *reconcile.Record) string {
	if e.resourced {
		if v := utils.ToInt64(rec.Get(reconcile.AttrResourcePrimKey)); v != 0 {
			return reconcile.CanonicalString(v)
		}
	}
	return rec.PrimaryKey()
}

func (e *roleEnricher) AddComputedFields(_ context.Context, rec *reconcile.Record) error {
	roles := e.roles[e.primKey(rec)]
	if len(roles) == 0 {
		return rec.Set(AttrRoleIDs, nil)
	}
	out := make([]int64, len(roles))
	copy(out, roles)
	return rec.Set(AttrRoleIDs, out)
}
