// Package indexcheck checks the search index against the database.
//
// The Service describes the configured models from the database schema and
// the policy table, runs the reconciliation over every company and group
// chunk, and saves a JSON report. Repairs are planned from the same run and
// only applied when confirmed.
//
// # Routes
//
//	GET  /indexcheck/models              models a run would check
//	POST /indexcheck/run                 run a check, returns the report
//	POST /indexcheck/repair              run a check and plan or apply repairs
//	GET  /indexcheck/index               index reachability and document count
//	GET  /indexcheck/index/terms/:field  distinct values of an index field
//	GET  /indexcheck/reports             saved reports, newest first
//	GET  /indexcheck/reports/:name       one saved report
package indexcheck
