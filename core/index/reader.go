package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"index-checker/core/reconcile"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// QueryReader reads documents through the search API. It filters on the
// server and pages with search_after. It cannot enumerate term values and
// does not know the document count.
type QueryReader struct {
	client *Client
}

// Fetch implements reconcile.IndexAdapter.
func (r *QueryReader) Fetch(ctx context.Context, req reconcile.IndexRequest) ([]*reconcile.Record, error) {
	if req.Model == nil {
		return nil, fmt.Errorf("%w: index fetch without model", reconcile.ErrConfiguration)
	}
	m := newMapping(req)
	cfg := r.client.cfg

	filters := []any{
		map[string]any{"terms": map[string]any{FieldEntryClassName: m.classNames()}},
	}
	caps := req.Model.Capabilities()
	if caps.CompanyScoped {
		filters = append(filters, map[string]any{"term": map[string]any{m.field(reconcile.AttrCompanyID): req.CompanyID}})
	}
	if caps.GroupScoped && !req.Groups.All() {
		filters = append(filters, map[string]any{"terms": map[string]any{m.field(reconcile.AttrGroupID): req.Groups.IDs()}})
	}

	var (
		out   []*reconcile.Record
		after []any
	)
	for {
		body := map[string]any{
			"size":    cfg.PageSize,
			"_source": m.sourceFields(),
			"query":   map[string]any{"bool": map[string]any{"filter": filters}},
			"sort":    []any{map[string]any{cfg.SortField: "asc"}},
		}
		if after != nil {
			body["search_after"] = after
		}
		reader, err := encode(body)
		if err != nil {
			return nil, err
		}

		var resp searchResponse
		if err := r.client.do(ctx, "search", esapi.SearchRequest{Index: []string{cfg.Index}, Body: reader}, &resp); err != nil {
			return nil, err
		}

		for _, h := range resp.Hits.Hits {
			rec, err := m.record(h.Source)
			if err != nil {
				r.client.logger.Warn("Skipping index document", zap.String("id", h.ID), zap.Error(err))
				continue
			}
			out = append(out, rec)
		}

		hits := resp.Hits.Hits
		if len(hits) < cfg.PageSize || len(hits[len(hits)-1].Sort) == 0 {
			break
		}
		after = hits[len(hits)-1].Sort
	}
	return out, nil
}

// TermValues is not supported by the search reader.
func (r *QueryReader) TermValues(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("term values through the search reader: %w", errors.ErrUnsupported)
}

// DocumentCount is unknown to the search reader.
func (r *QueryReader) DocumentCount(context.Context) (int64, error) {
	return reconcile.DocumentCountUnknown, nil
}

// DirectReader walks every document of the index with a scroll and keeps
// the ones belonging to the request. Documents whose scope fields are
// indexed with the wrong type are still found.
type DirectReader struct {
	client *Client
}

// Fetch implements reconcile.IndexAdapter.
func (r *DirectReader) Fetch(ctx context.Context, req reconcile.IndexRequest) ([]*reconcile.Record, error) {
	if req.Model == nil {
		return nil, fmt.Errorf("%w: index fetch without model", reconcile.ErrConfiguration)
	}
	m := newMapping(req)
	caps := req.Model.Capabilities()
	groups := make(map[string]struct{})
	for _, id := range req.Groups.IDs() {
		groups[reconcile.CanonicalString(id)] = struct{}{}
	}
	company := reconcile.CanonicalString(req.CompanyID)

	var out []*reconcile.Record
	err := r.scroll(ctx, m.sourceFields(), func(h hit) {
		class, _ := h.Source[FieldEntryClassName].(string)
		if _, ok := m.classes[class]; !ok {
			return
		}
		rec, err := m.record(h.Source)
		if err != nil {
			r.client.logger.Warn("Skipping index document", zap.String("id", h.ID), zap.Error(err))
			return
		}
		if caps.CompanyScoped && reconcile.CanonicalString(rec.Get(reconcile.AttrCompanyID)) != company {
			return
		}
		if caps.GroupScoped && !req.Groups.All() {
			if _, ok := groups[reconcile.CanonicalString(rec.Get(reconcile.AttrGroupID))]; !ok {
				return
			}
		}
		out = append(out, rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DirectReader) scroll(ctx context.Context, source []string, visit func(hit)) error {
	cfg := r.client.cfg
	keepAlive, err := time.ParseDuration(cfg.ScrollKeepAlive)
	if err != nil || keepAlive <= 0 {
		keepAlive = time.Minute
	}

	body, err := encode(map[string]any{
		"size":    cfg.PageSize,
		"_source": source,
		"query":   map[string]any{"match_all": map[string]any{}},
		"sort":    []string{"_doc"},
	})
	if err != nil {
		return err
	}

	var resp searchResponse
	if err := r.client.do(ctx, "scroll", esapi.SearchRequest{Index: []string{cfg.Index}, Body: body, Scroll: keepAlive}, &resp); err != nil {
		return err
	}

	scrollID := resp.ScrollID
	defer func() {
		if scrollID == "" {
			return
		}
		// Best effort; the scroll expires on its own.
		_ = r.client.do(context.Background(), "clear scroll", esapi.ClearScrollRequest{ScrollID: []string{scrollID}}, nil)
	}()

	for len(resp.Hits.Hits) > 0 {
		for _, h := range resp.Hits.Hits {
			visit(h)
		}
		if scrollID == "" {
			return nil
		}
		next := searchResponse{}
		if err := r.client.do(ctx, "scroll", esapi.ScrollRequest{ScrollID: scrollID, Scroll: keepAlive}, &next); err != nil {
			return err
		}
		if next.ScrollID != "" {
			scrollID = next.ScrollID
		}
		resp = next
	}
	return nil
}

// TermValues returns every distinct value of field, paging through a
// composite aggregation.
func (r *DirectReader) TermValues(ctx context.Context, field string) ([]string, error) {
	var (
		out   []string
		after map[string]any
	)
	for {
		composite := map[string]any{
			"size":    r.client.cfg.PageSize,
			"sources": []any{map[string]any{"value": map[string]any{"terms": map[string]any{"field": field}}}},
		}
		if after != nil {
			composite["after"] = after
		}
		body, err := encode(map[string]any{
			"size": 0,
			"aggs": map[string]any{"values": map[string]any{"composite": composite}},
		})
		if err != nil {
			return nil, err
		}

		var resp struct {
			Aggregations struct {
				Values struct {
					AfterKey map[string]any `json:"after_key"`
					Buckets  []struct {
						Key map[string]any `json:"key"`
					} `json:"buckets"`
				} `json:"values"`
			} `json:"aggregations"`
		}
		if err := r.client.do(ctx, "terms", esapi.SearchRequest{Index: []string{r.client.cfg.Index}, Body: body}, &resp); err != nil {
			return nil, err
		}

		buckets := resp.Aggregations.Values.Buckets
		for _, b := range buckets {
			out = append(out, reconcile.CanonicalString(plain(b.Key["value"])))
		}
		if len(buckets) == 0 || resp.Aggregations.Values.AfterKey == nil {
			return out, nil
		}
		after = resp.Aggregations.Values.AfterKey
	}
}

// DocumentCount returns the number of documents in the index.
func (r *DirectReader) DocumentCount(ctx context.Context) (int64, error) {
	var resp struct {
		Count json.Number `json:"count"`
	}
	if err := r.client.do(ctx, "count", esapi.CountRequest{Index: []string{r.client.cfg.Index}}, &resp); err != nil {
		return 0, err
	}
	n, err := resp.Count.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", reconcile.ErrQuery, err)
	}
	return n, nil
}
