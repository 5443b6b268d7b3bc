package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func documentModel(t *testing.T) *ModelDescriptor {
	t.Helper()
	m, err := BuildModelDescriptor("com.example.Document", Schema{
		Table:      "document",
		Columns:    []string{"document_id", "company_id", "group_id", "title", "status", "tags"},
		PrimaryKey: "document_id",
	}, Overlay{Attributes: []string{"title"}})
	require.NoError(t, err)
	return m
}

func companyModel(t *testing.T) *ModelDescriptor {
	t.Helper()
	m, err := BuildModelDescriptor("com.example.Setting", Schema{
		Table:      "setting",
		Columns:    []string{"setting_id", "company_id", "name"},
		PrimaryKey: "setting_id",
	}, Overlay{})
	require.NoError(t, err)
	return m
}

func newRec(t *testing.T, m *ModelDescriptor, attrs map[string]any) *Record {
	t.Helper()
	r, err := NewRecord(m, attrs)
	require.NoError(t, err)
	return r
}

func documentPolicy() *MatchPolicy {
	return &MatchPolicy{
		KeyAttributes:   []string{"document_id", "company_id"},
		ExactAttributes: []string{"title", "status"},
	}
}

// fakeStore serves fixed rows per company.
type fakeStore struct {
	mu     sync.Mutex
	rows   map[int64][]map[string]any
	err    error
	panic  bool
	calls  []StoreRequest
	scopes []ScopeContext
}

func (f *fakeStore) Fetch(ctx context.Context, req StoreRequest) (map[string]*Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	if scope, ok := ScopeFromContext(ctx); ok {
		f.scopes = append(f.scopes, scope)
	}
	f.mu.Unlock()

	if f.panic {
		panic("store exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]*Record)
	for _, row := range f.rows[req.CompanyID] {
		if !req.Filter.Matches(row) {
			continue
		}
		var opts []RecordOption
		if req.VersionAttribute != "" {
			opts = append(opts, WithVersion(req.VersionAttribute))
		}
		rec, err := NewRecord(req.Model, row, opts...)
		if err != nil {
			return nil, err
		}
		out[rec.UID()] = rec
	}
	return out, nil
}

// fakeIndex serves fixed documents per company.
type fakeIndex struct {
	mu    sync.Mutex
	docs  map[int64][]map[string]any
	err   error
	calls int
}

func (f *fakeIndex) Fetch(ctx context.Context, req IndexRequest) ([]*Record, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	var out []*Record
	for _, doc := range f.docs[req.CompanyID] {
		rec, err := NewRecord(req.Model, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeIndex) TermValues(ctx context.Context, field string) ([]string, error) {
	return nil, errors.New("unsupported")
}

func (f *fakeIndex) DocumentCount(ctx context.Context) (int64, error) {
	return DocumentCountUnknown, nil
}

// staticResolver returns the same policy for every model unless overridden.
type staticResolver struct {
	policy *MatchPolicy
	errFor map[string]error
}

func (s *staticResolver) PolicyFor(model *ModelDescriptor) (*MatchPolicy, error) {
	if err, ok := s.errFor[model.Name()]; ok {
		return nil, err
	}
	return s.policy, nil
}
