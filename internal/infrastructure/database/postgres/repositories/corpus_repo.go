// Package repositories holds the engine's data-access layer over the pgx
// pool.
package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// CorpusRepository stores the clinical knowledge corpus.  Embeddings persist
// as pgvector columns so the same snapshot can serve the in-memory retriever
// or an ANN index later.
type CorpusRepository struct {
	pool    *pgxpool.Pool
	logger  logging.Logger
	metrics *prometheus.AppMetrics
}

// NewCorpusRepository wires the repository.  metrics may be nil.
func NewCorpusRepository(pool *pgxpool.Pool, logger logging.Logger, metrics *prometheus.AppMetrics) *CorpusRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CorpusRepository{pool: pool, logger: logger.Named("corpus_repo"), metrics: metrics}
}

// LoadAll returns the full corpus snapshot, ordered by document ID for
// deterministic downstream behaviour.
func (r *CorpusRepository) LoadAll(ctx context.Context) ([]diagnosis.KnowledgeDocument, error) {
	start := time.Now()
	rows, err := r.pool.Query(ctx,
		`SELECT id, content, embedding, disease_tags
		 FROM knowledge_documents
		 ORDER BY id`)
	if err != nil {
		r.record("load_all", start, err)
		return nil, errors.Wrap(err, errors.ErrCodeCorpusLoadFailed, "failed to query knowledge corpus")
	}
	defer rows.Close()

	var docs []diagnosis.KnowledgeDocument
	for rows.Next() {
		var (
			doc diagnosis.KnowledgeDocument
			vec pgvector.Vector
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &vec, &doc.DiseaseTags); err != nil {
			r.record("load_all", start, err)
			return nil, errors.Wrap(err, errors.ErrCodeCorpusLoadFailed, "failed to scan knowledge document")
		}
		doc.Embedding = diagnosis.TextEmbedding(vec.Slice())
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		r.record("load_all", start, err)
		return nil, errors.Wrap(err, errors.ErrCodeCorpusLoadFailed, "failed to read knowledge corpus")
	}

	r.record("load_all", start, nil)
	r.logger.Info("corpus loaded from postgres", logging.Int("documents", len(docs)))
	return docs, nil
}

// Upsert writes one document, replacing any existing row with the same ID.
func (r *CorpusRepository) Upsert(ctx context.Context, doc diagnosis.KnowledgeDocument) error {
	start := time.Now()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO knowledge_documents (id, content, embedding, disease_tags, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (id) DO UPDATE
		 SET content = EXCLUDED.content,
		     embedding = EXCLUDED.embedding,
		     disease_tags = EXCLUDED.disease_tags,
		     updated_at = now()`,
		doc.ID, doc.Text, pgvector.NewVector(doc.Embedding), doc.DiseaseTags)
	r.record("upsert", start, err)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert knowledge document").
			WithDetail("id=" + doc.ID)
	}
	return nil
}

// Get returns one document by ID.
func (r *CorpusRepository) Get(ctx context.Context, id string) (*diagnosis.KnowledgeDocument, error) {
	start := time.Now()
	var (
		doc diagnosis.KnowledgeDocument
		vec pgvector.Vector
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, content, embedding, disease_tags FROM knowledge_documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Text, &vec, &doc.DiseaseTags)
	r.record("get", start, err)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("knowledge document not found").WithDetail("id=" + id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load knowledge document")
	}
	doc.Embedding = diagnosis.TextEmbedding(vec.Slice())
	return &doc, nil
}

// Count returns the corpus size.
func (r *CorpusRepository) Count(ctx context.Context) (int, error) {
	start := time.Now()
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_documents`).Scan(&n)
	r.record("count", start, err)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count knowledge documents")
	}
	return n, nil
}

func (r *CorpusRepository) record(operation string, start time.Time, err error) {
	if r.metrics != nil {
		prometheus.RecordDBQuery(r.metrics, operation, time.Since(start), err)
	}
}
