// Package storage uploads run reports to S3 compatible object storage.
//
// It wraps the MinIO Go client behind the Client interface so report
// export can be tested with the mocks in core/storage/mocks.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	err = storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region)
package storage
