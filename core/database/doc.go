// Package database handles database connections and schema inspection.
//
// It wraps GORM and opens MySQL, PostgreSQL or SQLite connections from the
// application's configuration.
//
// # Schema Inspection
//
// GetTableColumns lists the columns of a table and Introspect turns them into
// a reconcile.Schema (columns plus the single-column primary key) from which
// model descriptors are built.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", zap.Error(err))
//	}
//
//	schema, err := database.Introspect(db, "journal_article")
package database
