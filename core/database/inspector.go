package database

import (
	"fmt"
	"strings"

	"index-checker/core/reconcile"

	"gorm.io/gorm"
)

// ColumnInfo matches the output of SHOW COLUMNS
type ColumnInfo struct {
	Field   string
	Type    string
	Null    string
	Key     string
	Default *string // Pointer because NULL default is possible
	Extra   string
}

// GetTableColumns retrieves the column definitions for a given table.
// Field and Type are lowercased. Key is "PRI" for primary key columns.
func GetTableColumns(db *gorm.DB, tableName string) ([]ColumnInfo, error) {
	var columns []ColumnInfo

	switch db.Dialector.Name() {
	case DriverSQLite:
		// SQLite uses PRAGMA table_info
		type SQLiteColumn struct {
			Cid        int
			Name       string
			Type       string
			Notnull    int
			DefaultVal *string `gorm:"column:dflt_value"`
			Pk         int
		}
		var sqliteCols []SQLiteColumn
		if err := db.Raw(fmt.Sprintf("PRAGMA table_info('%s')", tableName)).Scan(&sqliteCols).Error; err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
		for _, col := range sqliteCols {
			info := ColumnInfo{
				Field:   strings.ToLower(col.Name),
				Type:    strings.ToLower(col.Type),
				Default: col.DefaultVal,
			}
			if col.Pk > 0 {
				info.Key = "PRI"
			}
			columns = append(columns, info)
		}
		return columns, nil

	case DriverPostgres:
		type pgColumn struct {
			ColumnName string
			DataType   string
			IsNullable string
			IsPrimary  bool
		}
		var pgCols []pgColumn
		err := db.Raw(`SELECT c.column_name, c.data_type, c.is_nullable,
	EXISTS (
		SELECT 1 FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage k
		  ON k.constraint_name = tc.constraint_name AND k.table_name = tc.table_name
		WHERE tc.table_name = c.table_name AND tc.constraint_type = 'PRIMARY KEY'
		  AND k.column_name = c.column_name
	) AS is_primary
FROM information_schema.columns c
WHERE c.table_name = ?
ORDER BY c.ordinal_position`, tableName).Scan(&pgCols).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
		for _, col := range pgCols {
			info := ColumnInfo{
				Field: strings.ToLower(col.ColumnName),
				Type:  strings.ToLower(col.DataType),
				Null:  col.IsNullable,
			}
			if col.IsPrimary {
				info.Key = "PRI"
			}
			columns = append(columns, info)
		}
		return columns, nil
	}

	err := db.Raw(fmt.Sprintf("SHOW COLUMNS FROM `%s`", tableName)).Scan(&columns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
	}
	// Normalize types to lowercase
	for i := range columns {
		columns[i].Type = strings.ToLower(columns[i].Type)
		columns[i].Field = strings.ToLower(columns[i].Field)
	}
	return columns, nil
}

// Introspect reads the schema of a table for model descriptor construction.
// A table with a composite primary key reports no primary key. A missing
// table is a configuration error.
func Introspect(db *gorm.DB, tableName string) (reconcile.Schema, error) {
	columns, err := GetTableColumns(db, tableName)
	if err != nil {
		return reconcile.Schema{}, fmt.Errorf("%w: %v", reconcile.ErrStoreUnavailable, err)
	}
	if len(columns) == 0 {
		return reconcile.Schema{}, fmt.Errorf("%w: table %s not found", reconcile.ErrConfiguration, tableName)
	}

	schema := reconcile.Schema{Table: tableName}
	var keys []string
	for _, col := range columns {
		schema.Columns = append(schema.Columns, col.Field)
		if col.Key == "PRI" {
			keys = append(keys, col.Field)
		}
	}
	if len(keys) == 1 {
		schema.PrimaryKey = keys[0]
	}
	return schema, nil
}
