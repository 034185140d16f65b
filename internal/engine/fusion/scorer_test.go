package fusion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsync/hybrid-engine/internal/engine/fusion"
	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

func doc(id string, similarity float64, tags ...string) diagnosis.ScoredDocument {
	return diagnosis.ScoredDocument{
		Document: diagnosis.KnowledgeDocument{
			ID:          id,
			Text:        "clinical reference " + id,
			DiseaseTags: tags,
		},
		Similarity: similarity,
	}
}

func newScorer(t *testing.T, cfg fusion.Config) *fusion.Scorer {
	t.Helper()
	s, err := fusion.NewScorer(cfg)
	require.NoError(t, err)
	return s
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*fusion.Config)
		wantErr bool
	}{
		{"defaults", func(*fusion.Config) {}, false},
		{"equal thirds", func(c *fusion.Config) {
			c.TextWeight, c.StructuredWeight, c.EvidenceWeight = 1.0/3, 1.0/3, 1.0/3
		}, false},
		{"negative weight", func(c *fusion.Config) { c.TextWeight = -0.1 }, true},
		{"sum below one", func(c *fusion.Config) { c.EvidenceWeight = 0.1 }, true},
		{"sum above one", func(c *fusion.Config) { c.StructuredWeight = 0.6 }, true},
		{"floor out of range", func(c *fusion.Config) { c.ScoreFloor = 1.0 }, true},
		{"negative floor", func(c *fusion.Config) { c.ScoreFloor = -0.01 }, true},
		{"zero saturation", func(c *fusion.Config) { c.EvidenceSaturation = 0 }, true},
		{"uncapped candidates", func(c *fusion.Config) { c.MaxCandidates = 0 }, false},
		{"negative candidate cap", func(c *fusion.Config) { c.MaxCandidates = -1 }, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := fusion.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeFusionWeightsInvalid))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// The reference scenario: a 45-year-old with exertional chest pain.  The
// classifier reads cardiac_ischemia at 0.6 and the best tagged document
// matches at 0.8, so under default weights the combined score is
// 0.4*0.8 + 0.4*0.6 + 0.2*min(1, 0.8/3) = 0.6133.
func TestFuse_ReferenceScenario(t *testing.T) {
	t.Parallel()

	s := newScorer(t, fusion.DefaultConfig())
	got := s.Fuse(
		map[string]float64{"cardiac_ischemia": 0.6},
		[]diagnosis.ScoredDocument{doc("kb-001", 0.8, "cardiac_ischemia")},
	)

	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "cardiac_ischemia", c.DiseaseLabel)
	assert.InDelta(t, 0.8, c.TextScore, 1e-9)
	assert.InDelta(t, 0.6, c.StructuredScore, 1e-9)
	assert.InDelta(t, 0.8/3.0, c.EvidenceScore, 1e-9)
	assert.InDelta(t, 0.61333333, c.CombinedScore, 1e-6)
	require.Len(t, c.SupportingDocuments, 1)
	assert.Equal(t, "kb-001", c.SupportingDocuments[0].ID)
}

func TestFuse_LabelsAreTheUnionOfChannels(t *testing.T) {
	t.Parallel()

	s := newScorer(t, fusion.DefaultConfig())
	got := s.Fuse(
		map[string]float64{"type_2_diabetes": 0.7},
		[]diagnosis.ScoredDocument{doc("kb-010", 0.9, "hypertension")},
	)

	require.Len(t, got, 2)
	labels := []string{got[0].DiseaseLabel, got[1].DiseaseLabel}
	assert.Contains(t, labels, "type_2_diabetes")
	assert.Contains(t, labels, "hypertension")

	for _, c := range got {
		switch c.DiseaseLabel {
		case "type_2_diabetes":
			assert.Zero(t, c.TextScore)
			assert.Zero(t, c.EvidenceScore)
			assert.Empty(t, c.SupportingDocuments)
		case "hypertension":
			assert.Zero(t, c.StructuredScore)
			assert.InDelta(t, 0.9, c.TextScore, 1e-9)
		}
	}
}

func TestFuse_TextScoreIsMaxOfTaggedDocuments(t *testing.T) {
	t.Parallel()

	s := newScorer(t, fusion.DefaultConfig())
	got := s.Fuse(nil, []diagnosis.ScoredDocument{
		doc("kb-a", 0.5, "hypertension"),
		doc("kb-b", 0.9, "hypertension"),
		doc("kb-c", 0.7, "hypertension"),
	})

	require.Len(t, got, 1)
	assert.InDelta(t, 0.9, got[0].TextScore, 1e-9)
	// Evidence accumulates across all tagged documents: 2.1/3.
	assert.InDelta(t, 0.7, got[0].EvidenceScore, 1e-9)
}

func TestFuse_EvidenceSaturatesAtOne(t *testing.T) {
	t.Parallel()

	s := newScorer(t, fusion.DefaultConfig())
	got := s.Fuse(nil, []diagnosis.ScoredDocument{
		doc("kb-a", 0.95, "sepsis"),
		doc("kb-b", 0.92, "sepsis"),
		doc("kb-c", 0.90, "sepsis"),
		doc("kb-d", 0.88, "sepsis"),
	})

	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].EvidenceScore, 1e-9)
}

func TestFuse_FloorDropsWeakCandidates(t *testing.T) {
	t.Parallel()

	s := newScorer(t, fusion.DefaultConfig())
	got := s.Fuse(map[string]float64{
		"cardiac_ischemia": 0.6,
		"migraine":         0.01, // 0.4*0.01 = 0.004 < 0.05
	}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, "cardiac_ischemia", got[0].DiseaseLabel)
	for _, c := range got {
		assert.GreaterOrEqual(t, c.CombinedScore, 0.05)
	}
}

func TestFuse_OrderingWithLexicalTieBreak(t *testing.T) {
	t.Parallel()

	s := newScorer(t, fusion.DefaultConfig())
	got := s.Fuse(map[string]float64{
		"hypertension":     0.5,
		"anemia":           0.5,
		"type_2_diabetes":  0.5,
		"cardiac_ischemia": 0.9,
	}, nil)

	require.Len(t, got, 4)
	assert.Equal(t, "cardiac_ischemia", got[0].DiseaseLabel)
	assert.Equal(t, "anemia", got[1].DiseaseLabel)
	assert.Equal(t, "hypertension", got[2].DiseaseLabel)
	assert.Equal(t, "type_2_diabetes", got[3].DiseaseLabel)
}

func TestFuse_MaxCandidatesKeepsTopRanked(t *testing.T) {
	t.Parallel()

	cfg := fusion.DefaultConfig()
	cfg.MaxCandidates = 2
	s := newScorer(t, cfg)

	got := s.Fuse(map[string]float64{
		"cardiac_ischemia": 0.9,
		"hypertension":     0.7,
		"type_2_diabetes":  0.5,
		"anemia":           0.3,
	}, nil)

	require.Len(t, got, 2)
	assert.Equal(t, "cardiac_ischemia", got[0].DiseaseLabel)
	assert.Equal(t, "hypertension", got[1].DiseaseLabel)
}

func TestFuse_ZeroMaxCandidatesMeansNoCap(t *testing.T) {
	t.Parallel()

	cfg := fusion.DefaultConfig()
	cfg.MaxCandidates = 0
	s := newScorer(t, cfg)

	probs := make(map[string]float64, 15)
	for _, label := range []string{
		"anemia", "asthma", "cardiac_ischemia", "cirrhosis", "copd",
		"dementia", "epilepsy", "gout", "hypertension", "lupus",
		"migraine", "psoriasis", "sciatica", "type_2_diabetes", "vertigo",
	} {
		probs[label] = 0.5
	}

	assert.Len(t, s.Fuse(probs, nil), 15)
}

func TestFuse_Deterministic(t *testing.T) {
	t.Parallel()

	s := newScorer(t, fusion.DefaultConfig())
	probs := map[string]float64{"hypertension": 0.4, "type_2_diabetes": 0.4, "anemia": 0.2}
	docs := []diagnosis.ScoredDocument{
		doc("kb-1", 0.7, "hypertension", "cardiac_ischemia"),
		doc("kb-2", 0.6, "type_2_diabetes"),
	}

	first := s.Fuse(probs, docs)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, s.Fuse(probs, docs))
	}
}

func TestFuse_ParameterizedWeights(t *testing.T) {
	t.Parallel()

	probs := map[string]float64{"hypertension": 0.5}
	docs := []diagnosis.ScoredDocument{doc("kb-1", 0.9, "hypertension")}

	tests := []struct {
		name         string
		text, strct  float64
		evidence     float64
		wantCombined float64
	}{
		{"text only", 1, 0, 0, 0.9},
		{"structured only", 0, 1, 0, 0.5},
		{"evidence only", 0, 0, 1, 0.3},
		{"balanced", 0.5, 0.3, 0.2, 0.45 + 0.15 + 0.06},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := fusion.DefaultConfig()
			cfg.TextWeight, cfg.StructuredWeight, cfg.EvidenceWeight = tt.text, tt.strct, tt.evidence
			s := newScorer(t, cfg)

			got := s.Fuse(probs, docs)
			require.Len(t, got, 1)
			assert.InDelta(t, tt.wantCombined, got[0].CombinedScore, 1e-9)
		})
	}
}

func TestFuse_SupportingDocumentsCappedAndOrdered(t *testing.T) {
	t.Parallel()

	s := newScorer(t, fusion.DefaultConfig())
	got := s.Fuse(nil, []diagnosis.ScoredDocument{
		doc("kb-1", 0.5, "sepsis"),
		doc("kb-2", 0.9, "sepsis"),
		doc("kb-3", 0.7, "sepsis"),
		doc("kb-4", 0.6, "sepsis"),
	})

	require.Len(t, got, 1)
	sup := got[0].SupportingDocuments
	require.Len(t, sup, 3)
	assert.Equal(t, "kb-2", sup[0].ID)
	assert.Equal(t, "kb-3", sup[1].ID)
	assert.Equal(t, "kb-4", sup[2].ID)
}

func TestFuse_EmptyInputs(t *testing.T) {
	t.Parallel()

	s := newScorer(t, fusion.DefaultConfig())
	assert.Empty(t, s.Fuse(nil, nil))
	assert.Empty(t, s.Fuse(map[string]float64{}, []diagnosis.ScoredDocument{}))
}
