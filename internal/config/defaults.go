package config

import "time"

// Default value constants.
const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultModelName         = "emilyalsentzer/Bio_ClinicalBERT"
	DefaultEmbeddingDim      = 768
	DefaultMaxSequenceLength = 512
	DefaultHFAPIBaseURL      = "https://router.huggingface.co/hf-inference/models"
	DefaultRemoteTimeout     = 20 * time.Second

	DefaultClassifierArtifact = "models/structured_classifier.json"

	DefaultRetrieverBackend = "memory"
	DefaultCorpusSource     = "file"
	DefaultCorpusPath       = "data/knowledge_corpus.json"
	DefaultTopK             = 5

	DefaultTextWeight         = 0.4
	DefaultStructuredWeight   = 0.4
	DefaultEvidenceWeight     = 0.2
	DefaultConfidenceFloor    = 0.05
	DefaultEvidenceSaturation = 3.0

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "healthsync"
	DefaultDBMaxConns = 25

	DefaultMilvusAddr       = "localhost:19530"
	DefaultMilvusCollection = "knowledge_documents"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "healthsync-models"

	DefaultMetricsNamespace = "healthsync"
)

// ApplyDefaults fills every zero-value field in cfg with the engine default.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.  Fields
// that have already been set by the caller are left unchanged so explicit
// configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// Inference
	if cfg.Inference.ModelName == "" {
		cfg.Inference.ModelName = DefaultModelName
	}
	if cfg.Inference.EmbeddingDim == 0 {
		cfg.Inference.EmbeddingDim = DefaultEmbeddingDim
	}
	if cfg.Inference.MaxSequenceLength == 0 {
		cfg.Inference.MaxSequenceLength = DefaultMaxSequenceLength
	}
	if cfg.Inference.HFAPIBaseURL == "" {
		cfg.Inference.HFAPIBaseURL = DefaultHFAPIBaseURL
	}
	if cfg.Inference.RemoteTimeout == 0 {
		cfg.Inference.RemoteTimeout = DefaultRemoteTimeout
	}

	// Classifier
	if cfg.Classifier.ArtifactPath == "" {
		cfg.Classifier.ArtifactPath = DefaultClassifierArtifact
	}

	// Retriever
	if cfg.Retriever.Backend == "" {
		cfg.Retriever.Backend = DefaultRetrieverBackend
	}
	if cfg.Retriever.CorpusSource == "" {
		cfg.Retriever.CorpusSource = DefaultCorpusSource
	}
	if cfg.Retriever.CorpusPath == "" {
		cfg.Retriever.CorpusPath = DefaultCorpusPath
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = DefaultTopK
	}

	// Fusion.  The weight defaults are all-or-nothing: partial overrides
	// would silently break the sum-to-one invariant, so defaults apply only
	// when no weight was set at all.
	if cfg.Fusion.TextWeight == 0 && cfg.Fusion.StructuredWeight == 0 && cfg.Fusion.EvidenceWeight == 0 {
		cfg.Fusion.TextWeight = DefaultTextWeight
		cfg.Fusion.StructuredWeight = DefaultStructuredWeight
		cfg.Fusion.EvidenceWeight = DefaultEvidenceWeight
	}
	if cfg.Fusion.ConfidenceFloor == 0 {
		cfg.Fusion.ConfidenceFloor = DefaultConfidenceFloor
	}
	if cfg.Fusion.EvidenceSaturation == 0 {
		cfg.Fusion.EvidenceSaturation = DefaultEvidenceSaturation
	}

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// Milvus
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.Collection == "" {
		cfg.Milvus.Collection = DefaultMilvusCollection
	}
	if cfg.Milvus.MetricType == "" {
		cfg.Milvus.MetricType = "COSINE"
	}

	// MinIO
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// Metrics
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
