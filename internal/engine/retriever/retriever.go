// Package retriever finds the knowledge documents most similar to a query
// embedding.  The default backend is a brute-force in-memory index; a Milvus
// backend serves corpora too large for process memory.
package retriever

import (
	"context"
	"math"
	"sort"

	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// Retriever returns the top-k corpus documents for a query embedding, sorted
// by similarity descending.  An empty result is not an error; callers attach
// the retrieval_empty warning instead.
type Retriever interface {
	Retrieve(ctx context.Context, query diagnosis.TextEmbedding, k int) ([]diagnosis.ScoredDocument, error)
	Size() int
}

// MemoryRetriever is a brute-force cosine index over an immutable corpus.
// All documents are validated against one embedding dimension at build time,
// so Retrieve never has to handle ragged vectors.
type MemoryRetriever struct {
	docs []diagnosis.KnowledgeDocument
	dim  int
}

// NewMemoryRetriever builds the index.  Every document embedding must have
// the given dimension; a mismatch is a RET_003 error naming the document.
func NewMemoryRetriever(docs []diagnosis.KnowledgeDocument, dim int) (*MemoryRetriever, error) {
	if dim <= 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingDimInvalid, "embedding dimension must be positive")
	}
	for _, d := range docs {
		if len(d.Embedding) != dim {
			return nil, errors.New(errors.ErrCodeEmbeddingDimInvalid,
				"corpus document embedding dimension does not match the encoder").
				WithDetail("doc=" + d.ID)
		}
	}
	out := make([]diagnosis.KnowledgeDocument, len(docs))
	copy(out, docs)
	return &MemoryRetriever{docs: out, dim: dim}, nil
}

// Size returns the number of indexed documents.
func (r *MemoryRetriever) Size() int { return len(r.docs) }

// Retrieve scores every document against the query.  A zero query (the
// defined encoding of empty clinical notes) carries no text signal, so it
// matches nothing.
func (r *MemoryRetriever) Retrieve(_ context.Context, query diagnosis.TextEmbedding, k int) ([]diagnosis.ScoredDocument, error) {
	if len(r.docs) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != r.dim {
		return nil, errors.New(errors.ErrCodeEmbeddingDimInvalid,
			"query embedding dimension does not match the corpus")
	}
	if query.IsZero() {
		return nil, nil
	}

	scored := make([]diagnosis.ScoredDocument, 0, len(r.docs))
	for _, d := range r.docs {
		scored = append(scored, diagnosis.ScoredDocument{
			Document:   d,
			Similarity: CosineSimilarity(query, d.Embedding),
		})
	}
	sortScored(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// sortScored orders by similarity descending, breaking ties by document ID
// ascending so identical inputs always produce identical rankings.
func sortScored(scored []diagnosis.ScoredDocument) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Document.ID < scored[j].Document.ID
	})
}

// CosineSimilarity computes cosine similarity clamped into [0,1].  Opposed
// vectors carry no supporting evidence, so negative cosine floors at zero
// rather than subtracting from the fused score.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
