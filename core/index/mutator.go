package index

import (
	"bytes"
	"context"
	"fmt"

	"index-checker/core/reconcile"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// deleteBatchSize bounds the uids of one delete-by-query request.
const deleteBatchSize = 1000

// Mutator writes repairs into the index. Documents are keyed by record uid.
type Mutator struct {
	client   *Client
	resolver reconcile.PolicyResolver
}

// Mutator returns an index mutator that maps attribute names through the
// policies of resolver.
func (c *Client) Mutator(resolver reconcile.PolicyResolver) *Mutator {
	return &Mutator{client: c, resolver: resolver}
}

// document renders a record with index field names.
func (m *Mutator) document(rec *reconcile.Record) (map[string]any, error) {
	policy, err := m.resolver.PolicyFor(rec.Model())
	if err != nil {
		return nil, err
	}
	doc := map[string]any{
		FieldEntryClassName: rec.Model().Name(),
		FieldUID:            rec.UID(),
	}
	for name, value := range rec.Attributes() {
		doc[policy.IndexFieldName(rec.Model(), name)] = value
	}
	return doc, nil
}

// Reindex implements reconcile.IndexMutator.
func (m *Mutator) Reindex(ctx context.Context, rec *reconcile.Record) error {
	doc, err := m.document(rec)
	if err != nil {
		return err
	}
	body, err := encode(doc)
	if err != nil {
		return err
	}
	return m.client.do(ctx, "index", esapi.IndexRequest{
		Index:      m.client.cfg.writeIndex(),
		DocumentID: rec.UID(),
		Body:       body,
	}, nil)
}

// DeleteDocument implements reconcile.IndexMutator.
func (m *Mutator) DeleteDocument(ctx context.Context, uid string) error {
	return m.DeleteDocuments(ctx, []string{uid})
}

// ReindexBatch writes every record with one bulk request.
func (m *Mutator) ReindexBatch(ctx context.Context, records []*reconcile.Record) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		doc, err := m.document(rec)
		if err != nil {
			return err
		}
		action := map[string]map[string]any{
			"index": {"_index": m.client.cfg.writeIndex(), "_id": rec.UID()},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode bulk document: %w", err)
		}
	}

	var resp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
		} `json:"items"`
	}
	if err := m.client.do(ctx, "bulk", esapi.BulkRequest{Body: &buf}, &resp); err != nil {
		return err
	}
	if resp.Errors {
		failed := 0
		for _, item := range resp.Items {
			for _, result := range item {
				if result.Status >= 300 {
					failed++
					m.client.logger.Warn("Bulk index item failed", zap.String("uid", result.ID), zap.Int("status", result.Status))
				}
			}
		}
		return fmt.Errorf("%w: bulk index: %d of %d documents failed", reconcile.ErrQuery, failed, len(records))
	}
	return nil
}

// DeleteDocuments removes the documents with the given uids.
func (m *Mutator) DeleteDocuments(ctx context.Context, uids []string) error {
	for start := 0; start < len(uids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(uids))
		body, err := encode(map[string]any{
			"query": map[string]any{"terms": map[string]any{FieldUID: uids[start:end]}},
		})
		if err != nil {
			return err
		}
		if err := m.client.do(ctx, "delete", esapi.DeleteByQueryRequest{
			Index: []string{m.client.cfg.Index},
			Body:  body,
		}, nil); err != nil {
			return err
		}
	}
	return nil
}
