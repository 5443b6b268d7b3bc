package index

// Reader kinds.
const (
	// ReaderSearch queries the index through the search API.
	ReaderSearch = "search"
	// ReaderDirect walks every document of the index.
	ReaderDirect = "direct"
)

// Config holds configuration for the search index connection.
type Config struct {
	// Addresses are the Elasticsearch node URLs (comma separated in env).
	Addresses []string `mapstructure:"addresses" default:"http://localhost:9200"`
	// Username for basic authentication.
	Username string `mapstructure:"username" default:""`
	// Password for basic authentication.
	Password string `mapstructure:"password" default:""`
	// APIKey takes precedence over basic authentication when set.
	APIKey string `mapstructure:"api_key" default:""`
	// Index is the index name or pattern holding the documents.
	Index string `mapstructure:"index" default:"liferay-*"`
	// WriteIndex receives repaired documents. Empty uses Index.
	WriteIndex string `mapstructure:"write_index" default:""`
	// Reader selects how documents are read (search, direct).
	Reader string `mapstructure:"reader" default:"search"`
	// PageSize is the number of hits per page or scroll batch.
	PageSize int `mapstructure:"page_size" default:"1000"`
	// SortField is a unique keyword field used for search_after paging.
	SortField string `mapstructure:"sort_field" default:"uid"`
	// ScrollKeepAlive is how long the direct reader keeps its scroll open.
	ScrollKeepAlive string `mapstructure:"scroll_keep_alive" default:"1m"`
	// TimeoutSeconds bounds each request.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// MaxRetries is the number of transport retries per request.
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// BreakerFailures is the number of consecutive failures that opens the circuit.
	BreakerFailures uint32 `mapstructure:"breaker_failures" default:"5"`
	// BreakerTimeoutSeconds is how long the circuit stays open.
	BreakerTimeoutSeconds int `mapstructure:"breaker_timeout_seconds" default:"30"`
}

func (c Config) writeIndex() string {
	if c.WriteIndex != "" {
		return c.WriteIndex
	}
	return c.Index
}
