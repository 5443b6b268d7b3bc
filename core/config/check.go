package config

import (
	"time"

	"index-checker/core/reconcile"
)

// CheckConfig holds the reconciliation settings.
type CheckConfig struct {
	// PolicyFile is the YAML model table. Empty uses the embedded default.
	PolicyFile string `mapstructure:"policy_file" default:""`
	// Models restricts runs to these model names. Empty checks every model.
	Models []string `mapstructure:"models" default:""`
	// Companies restricts runs to these company ids. Empty checks every company.
	Companies []int64 `mapstructure:"companies" default:""`
	// Concurrency is the number of units compared at once.
	Concurrency int `mapstructure:"concurrency" default:"4"`
	// GroupChunkSize splits a company's groups into units of this size.
	// Zero keeps one unit per company.
	GroupChunkSize int `mapstructure:"group_chunk_size" default:"0"`
	// GroupCacheTTLSeconds is how long listed groups are reused.
	GroupCacheTTLSeconds int `mapstructure:"group_cache_ttl_seconds" default:"300"`
	// IgnoreCase compares string attributes case-insensitively unless a model overrides it.
	IgnoreCase bool `mapstructure:"ignore_case" default:"false"`
	// OnIndexUnavailable is "empty" or "error".
	OnIndexUnavailable string `mapstructure:"on_index_unavailable" default:"empty"`
	// Output lists the buckets reported, e.g. "not-exact,only-index" or "all".
	Output string `mapstructure:"output" default:"not-exact,only-authoritative,only-index"`
	// ReportDir receives JSON reports. Empty disables writing them to disk.
	ReportDir string `mapstructure:"report_dir" default:"reports"`
	// ReportRetention is the number of uploaded reports kept in the bucket.
	// Zero keeps all of them.
	ReportRetention int `mapstructure:"report_retention" default:"30"`
}

// OutputModes parses Output.
func (c CheckConfig) OutputModes() (reconcile.OutputModes, error) {
	return reconcile.ParseOutputModes(c.Output)
}

// GroupCacheTTL returns the group cache lifetime.
func (c CheckConfig) GroupCacheTTL() time.Duration {
	return time.Duration(c.GroupCacheTTLSeconds) * time.Second
}

// IndexUnavailablePolicy returns the configured policy.
func (c CheckConfig) IndexUnavailablePolicy() reconcile.IndexUnavailablePolicy {
	return reconcile.IndexUnavailablePolicy(c.OnIndexUnavailable)
}
