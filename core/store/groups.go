package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"index-checker/core/reconcile"

	"golang.org/x/sync/singleflight"
)

const (
	companyTable = "company"
	groupTable   = "group_"
)

// groupList is a cached group id list of one company.
type groupList struct {
	ids   []int64
	built time.Time
}

// groupCache holds group lists keyed by company id.
type groupCache struct {
	mu      sync.RWMutex
	entries map[int64]groupList
	sf      singleflight.Group
	ttl     time.Duration
}

func newGroupCache(ttl time.Duration) *groupCache {
	return &groupCache{
		entries: make(map[int64]groupList),
		ttl:     ttl,
	}
}

func (c *groupCache) get(companyID int64) ([]int64, bool) {
	if c.ttl == 0 {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[companyID]
	c.mu.RUnlock()
	if !ok || time.Since(entry.built) > c.ttl {
		return nil, false
	}
	return entry.ids, true
}

func (c *groupCache) put(companyID int64, ids []int64) {
	if c.ttl == 0 {
		return
	}
	c.mu.Lock()
	c.entries[companyID] = groupList{ids: ids, built: time.Now()}
	c.mu.Unlock()
}

// Invalidate drops every cached group list.
func (s *Store) Invalidate() {
	s.groups.mu.Lock()
	s.groups.entries = make(map[int64]groupList)
	s.groups.mu.Unlock()
}

// Companies returns every company id in ascending order.
func (s *Store) Companies(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Table(companyTable).
		Order(reconcile.AttrCompanyID).
		Pluck(reconcile.AttrCompanyID, &ids).Error
	if err != nil {
		return nil, classifyError(companyTable, err)
	}
	return ids, nil
}

// Groups returns the group ids of a company in ascending order. Results
// are cached for the configured TTL; concurrent misses share one query.
func (s *Store) Groups(ctx context.Context, companyID int64) ([]int64, error) {
	if ids, ok := s.groups.get(companyID); ok {
		return ids, nil
	}

	key := strconv.FormatInt(companyID, 10)
	result, err, _ := s.groups.sf.Do(key, func() (any, error) {
		if ids, ok := s.groups.get(companyID); ok {
			return ids, nil
		}

		var ids []int64
		err := s.db.WithContext(ctx).
			Table(groupTable).
			Where(reconcile.AttrCompanyID+" = ?", companyID).
			Order(reconcile.AttrGroupID).
			Pluck(reconcile.AttrGroupID, &ids).Error
		if err != nil {
			return nil, classifyError(groupTable, err)
		}

		s.groups.put(companyID, ids)
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]int64), nil
}

// GroupScopes splits the groups of each company into scopes of at most
// GroupChunkSize ids. Companies are absent from the result when no chunk
// size is configured, which means AllGroups.
func (s *Store) GroupScopes(ctx context.Context, companies []int64) (map[int64][]reconcile.GroupScope, error) {
	out := make(map[int64][]reconcile.GroupScope, len(companies))
	if s.opts.GroupChunkSize <= 0 {
		return out, nil
	}

	for _, companyID := range companies {
		ids, err := s.Groups(ctx, companyID)
		if err != nil {
			return nil, fmt.Errorf("listing groups of company %d: %w", companyID, err)
		}
		// Group 0 stands for the company itself, so models without groups
		// run in the first chunk and are skipped in the others.
		scoped := append([]int64{0}, ids...)
		for _, c := range chunk(scoped, s.opts.GroupChunkSize) {
			out[companyID] = append(out[companyID], reconcile.Groups(c...))
		}
	}
	return out, nil
}
