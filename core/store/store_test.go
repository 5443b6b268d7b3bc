package store

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"index-checker/core/reconcile"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// setupMockDB creates a mock GORM DB for testing.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func documentModel(t *testing.T) *reconcile.ModelDescriptor {
	t.Helper()
	m, err := reconcile.BuildModelDescriptor("com.example.Document", reconcile.Schema{
		Table:      "dl_document",
		Columns:    []string{"document_id", "company_id", "group_id", "title", "status", "version"},
		PrimaryKey: "document_id",
	}, reconcile.Overlay{Attributes: []string{"title"}})
	require.NoError(t, err)
	return m
}

func TestStore_Fetch(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, Options{}, nil)
	m := documentModel(t)

	rows := sqlmock.NewRows([]string{"document_id", "company_id", "group_id", "status", "title"}).
		AddRow(1, 1, 10, 0, []byte("Alpha")).
		AddRow(2, 1, 11, 8, nil)
	mock.ExpectQuery("SELECT .+ FROM `dl_document` WHERE company_id = \\? AND group_id IN \\(\\?,\\?\\) AND .*status = \\? OR status = \\?.* ORDER BY document_id").
		WithArgs(1, 10, 11, "0", "8").
		WillReturnRows(rows)

	got, err := s.Fetch(context.Background(), reconcile.StoreRequest{
		Model:     m,
		CompanyID: 1,
		Groups:    reconcile.Groups(11, 10),
		Filter:    m.Filter(),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	doc := got["com.example.Document_PK_1"]
	require.NotNil(t, doc)
	assert.Equal(t, "Alpha", doc.Get("title"))
	assert.Equal(t, int64(1), doc.CompanyID())
	assert.Nil(t, got["com.example.Document_PK_2"].Get("title"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Fetch_LogsUnitScope(t *testing.T) {
	db, mock := setupMockDB(t)
	core, logs := observer.New(zapcore.DebugLevel)
	s := New(db, Options{}, zap.New(core))
	m := documentModel(t)

	mock.ExpectQuery("SELECT .+ FROM `dl_document`").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "company_id", "group_id", "status", "title"}).AddRow(1, 1, 10, 0, "Alpha"))

	ctx := reconcile.WithScope(context.Background(), reconcile.ScopeContext{UnitID: "unit-7", Model: m.Name(), CompanyID: 1})
	_, err := s.Fetch(ctx, reconcile.StoreRequest{Model: m, CompanyID: 1, Groups: reconcile.AllGroups()})
	require.NoError(t, err)

	entries := logs.FilterMessage("Fetched authoritative records").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "unit-7", entries[0].ContextMap()["unit_id"])
}

func TestStore_Fetch_AllGroupsAndVersions(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, Options{}, nil)
	m := documentModel(t)

	rows := sqlmock.NewRows([]string{"document_id", "company_id", "group_id", "status", "title", "version"}).
		AddRow(1, 1, 10, 0, "Alpha", "1.0").
		AddRow(1, 1, 10, 0, "Alpha", "1.1")
	mock.ExpectQuery("SELECT .+version.* FROM `dl_document` WHERE company_id = \\? ORDER BY document_id").
		WithArgs(1).
		WillReturnRows(rows)

	got, err := s.Fetch(context.Background(), reconcile.StoreRequest{
		Model:            m,
		CompanyID:        1,
		Groups:           reconcile.AllGroups(),
		VersionAttribute: "version",
	})
	require.NoError(t, err)
	assert.Contains(t, got, "com.example.Document_PK_1_V_1.0")
	assert.Contains(t, got, "com.example.Document_PK_1_V_1.1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Fetch_EmptyGroups(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, Options{}, nil)

	got, err := s.Fetch(context.Background(), reconcile.StoreRequest{
		Model:  documentModel(t),
		Groups: reconcile.Groups(),
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "connection lost",
			err:  &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")},
			want: reconcile.ErrStoreUnavailable,
		},
		{
			name: "bad query",
			err:  errors.New("Error 1054: Unknown column 'title'"),
			want: reconcile.ErrQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			s := New(db, Options{}, nil)
			mock.ExpectQuery("SELECT .+ FROM `dl_document`").WillReturnError(tt.err)

			_, err := s.Fetch(context.Background(), reconcile.StoreRequest{
				Model:     documentModel(t),
				CompanyID: 1,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStore_Fetch_InvalidIdentifier(t *testing.T) {
	db, _ := setupMockDB(t)
	s := New(db, Options{}, nil)

	m, err := reconcile.BuildModelDescriptor("com.example.Bad", reconcile.Schema{
		Table:      "bad table",
		Columns:    []string{"id"},
		PrimaryKey: "id",
	}, reconcile.Overlay{})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), reconcile.StoreRequest{Model: m})
	assert.ErrorIs(t, err, reconcile.ErrConfiguration)
}

func TestFilterClause(t *testing.T) {
	f, err := reconcile.ParseFilter("status=0+type!=folder")
	require.NoError(t, err)

	clause, args, err := filterClause(f)
	require.NoError(t, err)
	assert.Equal(t, "status = ? OR type IS NULL OR type <> ?", clause)
	assert.Equal(t, []any{"0", "folder"}, args)
}

func TestClassifyError_Canceled(t *testing.T) {
	err := classifyError("t", context.Canceled)
	assert.Equal(t, reconcile.KindCanceled, reconcile.Classify(err))
}

func TestChunk(t *testing.T) {
	assert.Nil(t, chunk([]int{}, 2))
	assert.Equal(t, [][]int{{1, 2, 3}}, chunk([]int{1, 2, 3}, 0))
	assert.Equal(t, [][]int{{1, 2}, {3}}, chunk([]int{1, 2, 3}, 2))
}

func TestStore_Groups_Cached(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, Options{GroupCacheTTL: time.Minute, GroupChunkSize: 2}, nil)

	mock.ExpectQuery("SELECT .*group_id.* FROM `group_` WHERE company_id = \\? ORDER BY group_id").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(10).AddRow(11).AddRow(12))

	ids, err := s.Groups(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, ids)

	scopes, err := s.GroupScopes(context.Background(), []int64{1})
	require.NoError(t, err)
	require.Len(t, scopes[1], 2)
	assert.Equal(t, []int64{0, 10}, scopes[1][0].IDs())
	assert.Equal(t, []int64{11, 12}, scopes[1][1].IDs())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GroupScopes_NoChunking(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, Options{}, nil)

	scopes, err := s.GroupScopes(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Empty(t, scopes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Companies(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, Options{}, nil)

	mock.ExpectQuery("SELECT .*company_id.* FROM `company` ORDER BY company_id").
		WillReturnRows(sqlmock.NewRows([]string{"company_id"}).AddRow(1).AddRow(2))

	ids, err := s.Companies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
