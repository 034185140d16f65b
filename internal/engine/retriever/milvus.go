package retriever

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// milvusNewClient allows tests to substitute the SDK client factory.
var milvusNewClient = client.NewClient

// MilvusConfig configures the Milvus-backed retriever.
type MilvusConfig struct {
	Address        string
	DBName         string
	Collection     string
	MetricType     string // "COSINE" or "IP"; defaults to COSINE
	SearchEf       int
	ConnectTimeout time.Duration
	EmbeddingDim   int
}

// MilvusRetriever serves top-k retrieval from a Milvus collection holding
// the knowledge corpus.  Collection schema: id (varchar, primary), text
// (varchar), disease_tags (varchar, JSON array), embedding (float vector).
type MilvusRetriever struct {
	client     client.Client
	collection string
	metricType entity.MetricType
	searchEf   int
	dim        int
	size       int
	logger     logging.Logger
}

// NewMilvusRetriever connects to Milvus, loads the collection, and caches the
// corpus size for health reporting.
func NewMilvusRetriever(ctx context.Context, cfg MilvusConfig, logger logging.Logger) (*MilvusRetriever, error) {
	if cfg.Address == "" {
		return nil, errors.InvalidParam("milvus address is required")
	}
	if cfg.Collection == "" {
		return nil, errors.InvalidParam("milvus collection is required")
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingDimInvalid, "embedding dimension must be positive")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.SearchEf <= 0 {
		cfg.SearchEf = 64
	}
	metricType := entity.COSINE
	if cfg.MetricType == "IP" {
		metricType = entity.IP
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	mc, err := milvusNewClient(connectCtx, client.Config{
		Address: cfg.Address,
		DBName:  cfg.DBName,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRetrievalFailed, "failed to connect to milvus").
			WithDetail("address=" + cfg.Address)
	}

	r := &MilvusRetriever{
		client:     mc,
		collection: cfg.Collection,
		metricType: metricType,
		searchEf:   cfg.SearchEf,
		dim:        cfg.EmbeddingDim,
		logger:     logger.Named("milvus_retriever"),
	}

	if err := mc.LoadCollection(ctx, cfg.Collection, false); err != nil {
		mc.Close()
		return nil, errors.Wrap(err, errors.ErrCodeRetrievalFailed, "failed to load milvus collection").
			WithDetail("collection=" + cfg.Collection)
	}
	r.size = r.fetchSize(ctx)

	r.logger.Info("milvus retriever ready",
		logging.String("collection", cfg.Collection),
		logging.Int("documents", r.size))
	return r, nil
}

func (r *MilvusRetriever) fetchSize(ctx context.Context) int {
	stats, err := r.client.GetCollectionStatistics(ctx, r.collection)
	if err != nil {
		r.logger.Warn("failed to read collection statistics", logging.Err(err))
		return 0
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0
	}
	return n
}

// Size returns the corpus size observed at startup.
func (r *MilvusRetriever) Size() int { return r.size }

// Retrieve searches the collection for the k nearest documents.
func (r *MilvusRetriever) Retrieve(ctx context.Context, query diagnosis.TextEmbedding, k int) ([]diagnosis.ScoredDocument, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != r.dim {
		return nil, errors.New(errors.ErrCodeEmbeddingDimInvalid,
			"query embedding dimension does not match the corpus")
	}
	if query.IsZero() {
		return nil, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(r.searchEf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRetrievalFailed, "failed to build search params")
	}

	results, err := r.client.Search(ctx, r.collection, nil, "",
		[]string{"text", "disease_tags"},
		[]entity.Vector{entity.FloatVector(query)},
		"embedding", r.metricType, k, sp)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRetrievalFailed, "milvus search failed").
			WithDetail("collection=" + r.collection)
	}

	var scored []diagnosis.ScoredDocument
	for _, res := range results {
		textCol := res.Fields.GetColumn("text")
		tagsCol := res.Fields.GetColumn("disease_tags")
		for i := 0; i < res.ResultCount; i++ {
			id, err := res.IDs.GetAsString(i)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeRetrievalFailed, "unexpected id column type")
			}
			doc := diagnosis.KnowledgeDocument{ID: id}
			if textCol != nil {
				doc.Text, _ = textCol.GetAsString(i)
			}
			if tagsCol != nil {
				rawTags, _ := tagsCol.GetAsString(i)
				if rawTags != "" {
					if err := json.Unmarshal([]byte(rawTags), &doc.DiseaseTags); err != nil {
						r.logger.Warn("document has malformed disease_tags",
							logging.String("doc", id), logging.Err(err))
					}
				}
			}
			scored = append(scored, diagnosis.ScoredDocument{
				Document:   doc,
				Similarity: clampSimilarity(float64(res.Scores[i])),
			})
		}
	}
	sortScored(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Close releases the Milvus connection.
func (r *MilvusRetriever) Close() error {
	return r.client.Close()
}

func clampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
