package config

import (
	"fmt"
	"reflect"
	"strings"

	"index-checker/core/database"
	"index-checker/core/index"
	"index-checker/core/logger"
	"index-checker/core/server"
	"index-checker/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for report uploads to object storage.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database connection.
	Database database.Config `mapstructure:"database"`
	// Index holds configuration for the Elasticsearch index.
	Index index.Config `mapstructure:"index"`
	// Check holds the reconciliation settings.
	Check CheckConfig `mapstructure:"check"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	// We construct the path to .env
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks settings that would otherwise fail late, in the middle of a run.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if c.Check.Concurrency < 1 {
		return fmt.Errorf("check.concurrency must be positive, got %d", c.Check.Concurrency)
	}
	if c.Check.GroupChunkSize < 0 {
		return fmt.Errorf("check.group_chunk_size must not be negative, got %d", c.Check.GroupChunkSize)
	}
	if !c.Check.IndexUnavailablePolicy().Valid() {
		return fmt.Errorf("check.on_index_unavailable must be %q or %q, got %q",
			"empty", "error", c.Check.OnIndexUnavailable)
	}
	if _, err := c.Check.OutputModes(); err != nil {
		return fmt.Errorf("check.output: %w", err)
	}
	switch c.Index.Reader {
	case index.ReaderSearch, index.ReaderDirect:
	default:
		return fmt.Errorf("index.reader must be %q or %q, got %q", index.ReaderSearch, index.ReaderDirect, c.Index.Reader)
	}
	return nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
