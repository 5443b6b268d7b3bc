package database

import (
	"testing"

	"index-checker/core/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTableColumns(t *testing.T) {
	// Setup In-Memory DB
	cfg := Config{
		Driver: DriverSQLite,
		Name:   ":memory:",
	}
	db, err := Connect(cfg)
	require.NoError(t, err)

	// SQLite specific types: INTEGER, TEXT.
	err = db.Exec("CREATE TABLE test_items (id INTEGER PRIMARY KEY, name TEXT, description TEXT)").Error
	require.NoError(t, err)

	columns, err := GetTableColumns(db, "test_items")
	assert.NoError(t, err)
	assert.Len(t, columns, 3)

	colMap := make(map[string]string)
	for _, col := range columns {
		colMap[col.Field] = col.Type
	}

	assert.Equal(t, "integer", colMap["id"])
	assert.Equal(t, "text", colMap["name"])
	assert.Equal(t, "text", colMap["description"])
	assert.Equal(t, "PRI", columns[0].Key)

	// PRAGMA table_info returns empty result for non-existent table in SQLite, implies no error but empty columns
	cols, err := GetTableColumns(db, "non_existent")
	assert.NoError(t, err)
	assert.Empty(t, cols)
}

func TestIntrospect(t *testing.T) {
	db, err := Connect(Config{Driver: DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE blogs_entry (
		entry_id INTEGER PRIMARY KEY,
		company_id INTEGER,
		group_id INTEGER,
		create_date TEXT,
		modified_date TEXT,
		status INTEGER,
		Title TEXT)`).Error)
	require.NoError(t, db.Exec("CREATE TABLE pairs (a INTEGER, b INTEGER, PRIMARY KEY (a, b))").Error)

	schema, err := Introspect(db, "blogs_entry")
	require.NoError(t, err)
	assert.Equal(t, "entry_id", schema.PrimaryKey)
	assert.Equal(t, []string{"entry_id", "company_id", "group_id", "create_date", "modified_date", "status", "title"}, schema.Columns)

	caps := reconcile.IntrospectCapabilities(schema.Columns)
	assert.True(t, caps.Workflow)
	assert.True(t, caps.Audited)
	assert.False(t, caps.ResourceIdentity)

	composite, err := Introspect(db, "pairs")
	require.NoError(t, err)
	assert.Empty(t, composite.PrimaryKey)

	_, err = Introspect(db, "missing")
	assert.ErrorIs(t, err, reconcile.ErrConfiguration)
}
