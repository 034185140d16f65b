package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all engine settings.
const envPrefix = "HEALTHSYNC"

// envBoundKeys lists every configuration key so that env-only overrides are
// visible to viper.Unmarshal.  AutomaticEnv alone resolves only keys that
// already exist in the config file, which would silently drop overrides like
// HEALTHSYNC_INFERENCE_HF_TOKEN on a file that omits the key.
var envBoundKeys = []string{
	"server.port", "server.mode", "server.read_timeout", "server.write_timeout",
	"server.max_body_size", "server.shutdown_timeout",
	"log.level", "log.format", "log.output",
	"inference.model_name", "inference.embedding_dim", "inference.model_path",
	"inference.tokenizer_path", "inference.ort_shared_library",
	"inference.max_sequence_length", "inference.hf_token",
	"inference.hf_api_base_url", "inference.remote_timeout",
	"inference.allow_remote_fallback",
	"classifier.artifact_path",
	"retriever.backend", "retriever.corpus_source", "retriever.corpus_path",
	"retriever.top_k",
	"fusion.text_weight", "fusion.structured_weight", "fusion.evidence_weight",
	"fusion.confidence_floor", "fusion.evidence_saturation", "fusion.max_candidates",
	"database.enabled", "database.host", "database.port", "database.user",
	"database.password", "database.db_name", "database.ssl_mode",
	"database.max_conns", "database.min_conns", "database.conn_max_lifetime",
	"database.migration_path",
	"milvus.addr", "milvus.db_name", "milvus.collection", "milvus.metric_type",
	"milvus.search_ef",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key",
	"minio.bucket", "minio.use_ssl", "minio.artifact_prefix",
	"metrics.enabled", "metrics.namespace",
}

// newViper builds a pre-configured Viper instance with the engine's standard
// settings: YAML file type, HEALTHSYNC_ env prefix, automatic env binding,
// and a key replacer that maps "." → "_" so that nested keys like
// "inference.hf_token" resolve to "HEALTHSYNC_INFERENCE_HF_TOKEN".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envBoundKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges any HEALTHSYNC_* environment
// variable overrides, applies engine defaults for unset fields, and validates
// the result.  It returns a fully-populated *Config or a descriptive error.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from HEALTHSYNC_* environment
// variables, with no config file required.  This is the preferred loading
// strategy for containerised (12-factor) deployments.
//
// Environment variable naming convention:
//
//	HEALTHSYNC_<SECTION>_<FIELD>   e.g.  HEALTHSYNC_SERVER_PORT,
//	HEALTHSYNC_INFERENCE_ALLOW_REMOTE_FALLBACK
func LoadFromEnv() (*Config, error) {
	v := newViper()
	// No config file; rely solely on env vars and defaults.
	return unmarshalAndFinalize(v)
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk.  It is intended for
// hot-reloading non-critical settings such as log level and fusion weights;
// callers are responsible for applying only the safe subset of changes at
// runtime.  Model paths and server settings require a restart.
//
// Watch is non-blocking; it starts a background goroutine managed by viper.
// If the changed file fails to parse or validate, onChange is NOT called so
// the application never enters a broken state.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read; errors are ignored here, callers should call Load first.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// It is intended for use in main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
