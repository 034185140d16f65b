// Package config defines all configuration structures for the hybrid
// diagnosis engine.  No I/O or parsing logic lives here, only plain data
// types and validation.
package config

import (
	"fmt"
	"math"
	"time"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// InferenceConfig holds the clinical text encoder parameters: the local ONNX
// path and the remote inference API fallback.
type InferenceConfig struct {
	// ModelName identifies the encoder family; it appears in /health and
	// /models/status and must match the model the corpus was embedded with.
	ModelName string `mapstructure:"model_name"`

	// EmbeddingDim is the output dimension of the encoder.  The zero-information
	// embedding for empty notes is a zero vector of this length.
	EmbeddingDim int `mapstructure:"embedding_dim"`

	// Local ONNX runtime settings.
	ModelPath         string `mapstructure:"model_path"`
	TokenizerPath     string `mapstructure:"tokenizer_path"`
	OrtSharedLibrary  string `mapstructure:"ort_shared_library"`
	MaxSequenceLength int    `mapstructure:"max_sequence_length"`

	// Remote inference API settings.  An empty HFToken disables the remote
	// path entirely; the engine then runs local-only.
	HFToken             string        `mapstructure:"hf_token"`
	HFAPIBaseURL        string        `mapstructure:"hf_api_base_url"`
	RemoteTimeout       time.Duration `mapstructure:"remote_timeout"`
	AllowRemoteFallback bool          `mapstructure:"allow_remote_fallback"`
}

// ClassifierConfig holds the structured classifier artifact location.
type ClassifierConfig struct {
	ArtifactPath string `mapstructure:"artifact_path"`
}

// RetrieverConfig holds knowledge-retrieval parameters.
type RetrieverConfig struct {
	// Backend selects the retrieval implementation: "memory" serves from the
	// in-process corpus; "milvus" delegates similarity search to a cluster.
	Backend string `mapstructure:"backend"`

	// CorpusSource selects where the corpus snapshot is loaded from at
	// startup: "file" | "postgres".
	CorpusSource string `mapstructure:"corpus_source"`
	CorpusPath   string `mapstructure:"corpus_path"`

	TopK int `mapstructure:"top_k"`
}

// FusionConfig holds the hybrid scoring weights.  TextWeight applies to the
// retrieval-derived text score, StructuredWeight to the classifier
// probability, EvidenceWeight to the corpus-support score.  The three must
// sum to 1.
type FusionConfig struct {
	TextWeight       float64 `mapstructure:"text_weight"`
	StructuredWeight float64 `mapstructure:"structured_weight"`
	EvidenceWeight   float64 `mapstructure:"evidence_weight"`

	// ConfidenceFloor drops candidates whose combined score falls below it.
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`

	// EvidenceSaturation is the summed-similarity mass at which the evidence
	// score reaches 1.0.
	EvidenceSaturation float64 `mapstructure:"evidence_saturation"`

	// MaxCandidates caps the number of candidates returned; 0 means no cap.
	MaxCandidates int `mapstructure:"max_candidates"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the optional
// corpus store.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// MilvusConfig holds Milvus vector-store connection parameters for the
// optional remote retriever backend.
type MilvusConfig struct {
	Addr         string `mapstructure:"addr"`
	DBName       string `mapstructure:"db_name"`
	Collection   string `mapstructure:"collection"`
	MetricType   string `mapstructure:"metric_type"`
	SearchParams int    `mapstructure:"search_ef"`
}

// MinIOConfig holds object-storage parameters for startup artifact fetches.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	// ArtifactPrefix is prepended to every object name fetched at startup.
	ArtifactPrefix string `mapstructure:"artifact_prefix"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Config is the root configuration structure for the engine.  Every
// infrastructure component and pipeline stage reads its settings from the
// relevant sub-struct.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Inference  InferenceConfig  `mapstructure:"inference"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Retriever  RetrieverConfig  `mapstructure:"retriever"`
	Fusion     FusionConfig     `mapstructure:"fusion"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Milvus     MilvusConfig     `mapstructure:"milvus"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// weightSumTolerance absorbs float rounding when checking that the fusion
// weights sum to 1.
const weightSumTolerance = 1e-6

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Inference
	if c.Inference.ModelName == "" {
		return fmt.Errorf("config: inference.model_name is required")
	}
	if c.Inference.EmbeddingDim < 1 {
		return fmt.Errorf("config: inference.embedding_dim must be ≥ 1, got %d", c.Inference.EmbeddingDim)
	}
	if c.Inference.MaxSequenceLength < 1 {
		return fmt.Errorf("config: inference.max_sequence_length must be ≥ 1, got %d", c.Inference.MaxSequenceLength)
	}
	if c.Inference.RemoteTimeout <= 0 {
		return fmt.Errorf("config: inference.remote_timeout must be positive, got %s", c.Inference.RemoteTimeout)
	}

	// Classifier
	if c.Classifier.ArtifactPath == "" {
		return fmt.Errorf("config: classifier.artifact_path is required")
	}

	// Retriever
	switch c.Retriever.Backend {
	case "memory", "milvus":
	default:
		return fmt.Errorf("config: retriever.backend %q is invalid; expected memory|milvus", c.Retriever.Backend)
	}
	switch c.Retriever.CorpusSource {
	case "file", "postgres":
	default:
		return fmt.Errorf("config: retriever.corpus_source %q is invalid; expected file|postgres", c.Retriever.CorpusSource)
	}
	if c.Retriever.CorpusSource == "file" && c.Retriever.CorpusPath == "" {
		return fmt.Errorf("config: retriever.corpus_path is required when corpus_source is file")
	}
	if c.Retriever.CorpusSource == "postgres" && !c.Database.Enabled {
		return fmt.Errorf("config: database.enabled must be true when retriever.corpus_source is postgres")
	}
	if c.Retriever.TopK < 1 {
		return fmt.Errorf("config: retriever.top_k must be ≥ 1, got %d", c.Retriever.TopK)
	}

	// Fusion
	sum := c.Fusion.TextWeight + c.Fusion.StructuredWeight + c.Fusion.EvidenceWeight
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("config: fusion weights must sum to 1, got %.6f", sum)
	}
	for name, w := range map[string]float64{
		"fusion.text_weight":       c.Fusion.TextWeight,
		"fusion.structured_weight": c.Fusion.StructuredWeight,
		"fusion.evidence_weight":   c.Fusion.EvidenceWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("config: %s %.4f is out of range [0, 1]", name, w)
		}
	}
	if c.Fusion.ConfidenceFloor < 0 || c.Fusion.ConfidenceFloor >= 1 {
		return fmt.Errorf("config: fusion.confidence_floor %.4f is out of range [0, 1)", c.Fusion.ConfidenceFloor)
	}
	if c.Fusion.EvidenceSaturation <= 0 {
		return fmt.Errorf("config: fusion.evidence_saturation must be positive, got %.4f", c.Fusion.EvidenceSaturation)
	}

	// Database (only when the corpus store is in play)
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required")
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("config: database.max_conns must be ≥ 1, got %d", c.Database.MaxConns)
		}
	}

	// Milvus (only when selected as the retriever backend)
	if c.Retriever.Backend == "milvus" {
		if c.Milvus.Addr == "" {
			return fmt.Errorf("config: milvus.addr is required when retriever.backend is milvus")
		}
		if c.Milvus.Collection == "" {
			return fmt.Errorf("config: milvus.collection is required when retriever.backend is milvus")
		}
	}

	// MinIO (only when artifact fetching is enabled)
	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required when metrics are enabled")
	}

	return nil
}
