// Package classifier evaluates the structured gradient-boosted ensemble.
// The model is loaded once at startup from a JSON artifact and is immutable
// afterwards, so Predict is lock-free and safe for concurrent use.
package classifier

import (
	"math"
	"os"
	"sort"

	"github.com/healthsync/hybrid-engine/pkg/errors"
)

// Classifier scores a structured feature vector against every disease label
// in the loaded artifact.
type Classifier struct {
	artifact *Artifact
	labels   []string
}

// Load reads the artifact at path and builds the classifier.  A missing file
// maps to ENC-style unavailability (CLS_001) so the caller can fail startup;
// a present but malformed artifact maps to CLS_002.
func Load(path string) (*Classifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New(errors.ErrCodeClassifierUnavailable,
			"structured classifier artifact not found").
			WithDetail("path=" + path).WithCause(err)
	}
	artifact, err := readArtifact(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeClassifierArtifactInvalid,
			"structured classifier artifact is invalid").
			WithDetail("path=" + path).WithCause(err)
	}
	return newClassifier(artifact), nil
}

// LoadBytes builds a classifier from an in-memory artifact.  Used by tests
// and by the object-store fetch path.
func LoadBytes(raw []byte) (*Classifier, error) {
	artifact, err := parseArtifact(raw)
	if err != nil {
		return nil, errors.New(errors.ErrCodeClassifierArtifactInvalid,
			"structured classifier artifact is invalid").WithCause(err)
	}
	return newClassifier(artifact), nil
}

func newClassifier(a *Artifact) *Classifier {
	labels := make([]string, 0, len(a.Classes))
	for _, cls := range a.Classes {
		labels = append(labels, cls.Label)
	}
	sort.Strings(labels)
	return &Classifier{artifact: a, labels: labels}
}

// Labels returns the disease labels the model scores, sorted ascending.
func (c *Classifier) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// Version returns the artifact's model version string.
func (c *Classifier) Version() string { return c.artifact.ModelVersion }

// FeatureCount returns the length of feature vector the model expects.
func (c *Classifier) FeatureCount() int { return len(c.artifact.FeatureNames) }

// Predict evaluates every per-label booster against the feature vector and
// returns label → probability.  NaN features route left at each split.
func (c *Classifier) Predict(features []float64) (map[string]float64, error) {
	if len(features) != len(c.artifact.FeatureNames) {
		return nil, errors.New(errors.ErrCodeClassifierFeatureMismatch,
			"feature vector length does not match the model")
	}

	out := make(map[string]float64, len(c.artifact.Classes))
	for _, cls := range c.artifact.Classes {
		margin := c.artifact.BaseScore
		for _, tree := range cls.Trees {
			margin += evalTree(tree, features)
		}
		out[cls.Label] = sigmoid(margin)
	}
	return out, nil
}

func evalTree(t Tree, features []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf != nil {
			return *n.Leaf
		}
		v := features[n.Feature]
		if math.IsNaN(v) || v < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
