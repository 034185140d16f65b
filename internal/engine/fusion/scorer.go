// Package fusion combines the three evidence channels into one ranked
// candidate list: text similarity from the retriever, class probability from
// the structured classifier, and corpus evidence mass.  Scoring is pure and
// deterministic so a request can be replayed from its inputs.
package fusion

import (
	"fmt"
	"math"
	"sort"

	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

const weightSumTolerance = 1e-6

// Config carries the fusion weights and thresholds.  Weights must be
// non-negative and sum to 1.
type Config struct {
	TextWeight       float64
	StructuredWeight float64
	EvidenceWeight   float64

	// ScoreFloor drops candidates whose combined score falls below it.
	ScoreFloor float64

	// EvidenceSaturation is the similarity mass at which the evidence
	// channel reads 1.0.
	EvidenceSaturation float64

	// MaxCandidates caps the ranked candidate list; 0 means no cap.
	MaxCandidates int

	// MaxSupportingDocuments caps the documents attached per candidate.
	MaxSupportingDocuments int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		TextWeight:             0.4,
		StructuredWeight:       0.4,
		EvidenceWeight:         0.2,
		ScoreFloor:             0.05,
		EvidenceSaturation:     3.0,
		MaxCandidates:          10,
		MaxSupportingDocuments: 3,
	}
}

// Validate checks the weight invariants.
func (c Config) Validate() error {
	for name, w := range map[string]float64{
		"text_weight":       c.TextWeight,
		"structured_weight": c.StructuredWeight,
		"evidence_weight":   c.EvidenceWeight,
	} {
		if w < 0 || math.IsNaN(w) {
			return errors.New(errors.ErrCodeFusionWeightsInvalid, "fusion weight must be non-negative").
				WithDetail(fmt.Sprintf("%s=%v", name, w))
		}
	}
	sum := c.TextWeight + c.StructuredWeight + c.EvidenceWeight
	if math.Abs(sum-1.0) > weightSumTolerance {
		return errors.New(errors.ErrCodeFusionWeightsInvalid, "fusion weights must sum to 1").
			WithDetail(fmt.Sprintf("sum=%v", sum))
	}
	if c.ScoreFloor < 0 || c.ScoreFloor >= 1 {
		return errors.New(errors.ErrCodeFusionWeightsInvalid, "score floor must be in [0, 1)").
			WithDetail(fmt.Sprintf("score_floor=%v", c.ScoreFloor))
	}
	if c.EvidenceSaturation <= 0 {
		return errors.New(errors.ErrCodeFusionWeightsInvalid, "evidence saturation must be positive").
			WithDetail(fmt.Sprintf("evidence_saturation=%v", c.EvidenceSaturation))
	}
	if c.MaxCandidates < 0 {
		return errors.New(errors.ErrCodeFusionWeightsInvalid, "max candidates must be non-negative").
			WithDetail(fmt.Sprintf("max_candidates=%d", c.MaxCandidates))
	}
	return nil
}

// Scorer fuses classifier probabilities with retrieval evidence.
type Scorer struct {
	cfg Config
}

// NewScorer validates the config and returns a ready scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.MaxSupportingDocuments <= 0 {
		cfg.MaxSupportingDocuments = 3
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Fuse ranks every label known to either channel.
//
// For each label: text_score is the highest similarity among retrieved
// documents tagged with it, structured_score is the classifier probability,
// and evidence_score is the tagged similarity mass clipped at the saturation
// constant.  Candidates below the score floor are dropped; survivors sort by
// combined score descending with a lexical tie-break on the label.
func (s *Scorer) Fuse(probabilities map[string]float64, retrieved []diagnosis.ScoredDocument) []diagnosis.DiagnosisCandidate {
	labels := make(map[string]struct{}, len(probabilities))
	for label := range probabilities {
		labels[label] = struct{}{}
	}
	docsByLabel := make(map[string][]diagnosis.ScoredDocument)
	for _, sd := range retrieved {
		for _, tag := range sd.Document.DiseaseTags {
			labels[tag] = struct{}{}
			docsByLabel[tag] = append(docsByLabel[tag], sd)
		}
	}

	candidates := make([]diagnosis.DiagnosisCandidate, 0, len(labels))
	for label := range labels {
		var textScore, evidenceMass float64
		for _, sd := range docsByLabel[label] {
			if sd.Similarity > textScore {
				textScore = sd.Similarity
			}
			evidenceMass += sd.Similarity
		}
		evidenceScore := math.Min(1.0, evidenceMass/s.cfg.EvidenceSaturation)
		structuredScore := probabilities[label]

		combined := s.cfg.TextWeight*textScore +
			s.cfg.StructuredWeight*structuredScore +
			s.cfg.EvidenceWeight*evidenceScore
		if combined < s.cfg.ScoreFloor {
			continue
		}

		candidates = append(candidates, diagnosis.DiagnosisCandidate{
			DiseaseLabel:        label,
			TextScore:           textScore,
			StructuredScore:     structuredScore,
			EvidenceScore:       evidenceScore,
			CombinedScore:       combined,
			SupportingDocuments: s.supportingDocs(docsByLabel[label]),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CombinedScore != candidates[j].CombinedScore {
			return candidates[i].CombinedScore > candidates[j].CombinedScore
		}
		return candidates[i].DiseaseLabel < candidates[j].DiseaseLabel
	})
	if s.cfg.MaxCandidates > 0 && len(candidates) > s.cfg.MaxCandidates {
		candidates = candidates[:s.cfg.MaxCandidates]
	}
	return candidates
}

// supportingDocs projects the label's documents into the API shape, best
// first, capped at the configured limit.
func (s *Scorer) supportingDocs(docs []diagnosis.ScoredDocument) []diagnosis.SupportingDocument {
	if len(docs) == 0 {
		return nil
	}
	sorted := make([]diagnosis.ScoredDocument, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Similarity != sorted[j].Similarity {
			return sorted[i].Similarity > sorted[j].Similarity
		}
		return sorted[i].Document.ID < sorted[j].Document.ID
	})
	if len(sorted) > s.cfg.MaxSupportingDocuments {
		sorted = sorted[:s.cfg.MaxSupportingDocuments]
	}
	out := make([]diagnosis.SupportingDocument, len(sorted))
	for i, sd := range sorted {
		out[i] = diagnosis.SupportingDocument{
			ID:         sd.Document.ID,
			Text:       sd.Document.Text,
			Similarity: sd.Similarity,
		}
	}
	return out
}
