// Package diagnosis defines the shared data types of the hybrid diagnosis
// pipeline: patient cases, embeddings, knowledge documents, and the fused
// diagnosis result returned by the API.  The types here are transport-neutral;
// JSON tags match the public API contract.
package diagnosis

import (
	"encoding/json"
	"strings"

	"github.com/healthsync/hybrid-engine/pkg/errors"
)

// Gender is the patient gender enum accepted by the engine.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// ParseGender normalises a free-form gender string to a Gender value.
// Matching is case-insensitive.  An empty string maps to GenderUnknown;
// anything else unrecognised is a validation error.
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return GenderMale, nil
	case "female", "f":
		return GenderFemale, nil
	case "other":
		return GenderOther, nil
	case "unknown", "":
		return GenderUnknown, nil
	default:
		return "", errors.Validation("gender must be one of male, female, other, unknown").
			WithDetail("got=" + s)
	}
}

// UnmarshalJSON decodes any casing clients send ("Male", "F") through
// ParseGender, so a bound PatientCase always holds a canonical value.
func (g *Gender) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseGender(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Valid reports whether g is one of the accepted enum values.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderUnknown:
		return true
	}
	return false
}

// PatientCase is the input record for a single analysis request.  Age, Gender
// and ClinicalNotes are the core fields; the remaining vitals are optional and
// feed the structured classifier when present.
type PatientCase struct {
	Age           int    `json:"age"`
	Gender        Gender `json:"gender"`
	ClinicalNotes string `json:"clinical_notes"`

	// Optional vitals.  Nil means not measured; the feature builder encodes
	// absent values so the classifier can route around them.
	BloodPressure *string  `json:"blood_pressure,omitempty"` // "systolic/diastolic", e.g. "120/80"
	Cholesterol   *float64 `json:"cholesterol,omitempty"`    // total cholesterol, mg/dL
	BloodGlucose  *float64 `json:"blood_glucose,omitempty"`  // fasting glucose, mg/dL
	HDL           *float64 `json:"hdl,omitempty"`
	LDL           *float64 `json:"ldl,omitempty"`
	BUN           *float64 `json:"bun,omitempty"`
	Creatinine    *float64 `json:"creatinine,omitempty"`
	HbA1c         *float64 `json:"hba1c,omitempty"`
	HeightCm      *float64 `json:"height_cm,omitempty"`
	WeightKg      *float64 `json:"weight_kg,omitempty"`

	Allergies     []string `json:"allergies,omitempty"`
	Prescriptions []string `json:"prescriptions,omitempty"`
}

// TextEmbedding is a dense vector produced by the clinical text encoder.
// A zero vector is the defined encoding of empty clinical notes.
type TextEmbedding []float32

// IsZero reports whether every component of the embedding is zero.
func (e TextEmbedding) IsZero() bool {
	for _, v := range e {
		if v != 0 {
			return false
		}
	}
	return true
}

// KnowledgeDocument is one entry of the curated clinical knowledge corpus.
// Embeddings are precomputed offline with the same encoder family that serves
// requests, so query and corpus vectors live in one space.
type KnowledgeDocument struct {
	ID          string        `json:"id"`
	Text        string        `json:"text"`
	Embedding   TextEmbedding `json:"embedding"`
	DiseaseTags []string      `json:"disease_tags"`
}

// ScoredDocument pairs a corpus document with its similarity to a query
// embedding.  Similarity is cosine, mapped into [0,1].
type ScoredDocument struct {
	Document   KnowledgeDocument `json:"document"`
	Similarity float64           `json:"similarity"`
}

// SupportingDocument is the API-facing projection of a scored document
// attached to a diagnosis candidate.
type SupportingDocument struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// TaxonomyPath places a disease label in the three-level clinical taxonomy.
type TaxonomyPath struct {
	L1 string `json:"l1"`
	L2 string `json:"l2"`
	L3 string `json:"l3"`
}

// DiagnosisCandidate is one ranked hypothesis in the fused result.
type DiagnosisCandidate struct {
	DiseaseLabel    string  `json:"disease_label"`
	TextScore       float64 `json:"text_score"`
	StructuredScore float64 `json:"structured_score"`
	EvidenceScore   float64 `json:"evidence_score"`
	CombinedScore   float64 `json:"combined_score"`

	SupportingDocuments []SupportingDocument `json:"supporting_documents"`
	Taxonomy            *TaxonomyPath        `json:"taxonomy,omitempty"`
	Recommendations     []string             `json:"recommendations,omitempty"`
}

// InferenceMode reports which encoding path served a request.
type InferenceMode string

const (
	// InferenceModeLocal means the in-process model produced the embedding.
	InferenceModeLocal InferenceMode = "local"

	// InferenceModeRemote means the hosted inference API produced it.
	InferenceModeRemote InferenceMode = "api"
)

// Warning strings attached to HybridDiagnosisResult.  Warnings never replace
// errors; they flag degraded-but-successful analysis paths.
const (
	WarningEmptyClinicalNotes = "empty_clinical_notes"
	WarningRemoteFallback     = "remote_fallback"
	WarningRetrievalEmpty     = "retrieval_empty"
)

// HybridDiagnosisResult is the complete response of one analysis.
// Candidates are sorted by combined score descending, ties broken by disease
// label ascending, so identical inputs always serialize identically.
type HybridDiagnosisResult struct {
	Candidates    []DiagnosisCandidate `json:"candidates"`
	InferenceMode InferenceMode        `json:"inference_mode"`
	Warnings      []string             `json:"warnings"`

	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
	Differentials     []string `json:"differentials,omitempty"`
}
