// Package config loads the index checker configuration.
//
// Values come from a .env file, then environment variables, then the
// `default` struct tags. Nested keys map to upper case variables joined by
// underscores, so check.group_chunk_size is read from CHECK_GROUP_CHUNK_SIZE.
//
// # Configuration Structure
//
//   - Server: HTTP port, API key, timeouts and metrics path
//   - Database: authoritative store connection (mysql, postgres, sqlite)
//   - Index: Elasticsearch addresses, index pattern and reader
//   - Storage: optional MinIO bucket for uploaded reports
//   - Log: logging level and format
//   - Check: policy file, concurrency, group chunking and output buckets
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
