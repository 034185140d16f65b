package classifier

import (
	"encoding/json"
	"fmt"
	"os"
)

// Artifact is the on-disk JSON representation of the trained gradient-boosted
// ensemble.  One tree list per disease label; each list is evaluated as an
// independent binary one-vs-rest booster.
type Artifact struct {
	ModelVersion string       `json:"model_version"`
	FeatureNames []string     `json:"feature_names"`
	BaseScore    float64      `json:"base_score"`
	Classes      []ClassTrees `json:"classes"`
}

// ClassTrees groups the boosted trees of one disease label.
type ClassTrees struct {
	Label string `json:"label"`
	Trees []Tree `json:"trees"`
}

// Tree is a flat node array.  Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is either a split (Leaf == nil) or a leaf (Leaf != nil).  Split nodes
// compare feature[Feature] < Threshold; missing values (NaN) follow the left
// branch, matching the training convention.
type Node struct {
	Feature   int      `json:"feature,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
	Left      int      `json:"left,omitempty"`
	Right     int      `json:"right,omitempty"`
	Leaf      *float64 `json:"leaf,omitempty"`
}

// readArtifact parses and structurally validates the artifact at path.
func readArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseArtifact(raw)
}

func parseArtifact(raw []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("artifact is not valid JSON: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	if len(a.FeatureNames) == 0 {
		return fmt.Errorf("artifact has no feature_names")
	}
	if len(a.Classes) == 0 {
		return fmt.Errorf("artifact has no classes")
	}
	seen := make(map[string]bool, len(a.Classes))
	for ci, cls := range a.Classes {
		if cls.Label == "" {
			return fmt.Errorf("class %d has an empty label", ci)
		}
		if seen[cls.Label] {
			return fmt.Errorf("duplicate class label %q", cls.Label)
		}
		seen[cls.Label] = true
		if len(cls.Trees) == 0 {
			return fmt.Errorf("class %q has no trees", cls.Label)
		}
		for ti, tree := range cls.Trees {
			if err := tree.validate(len(a.FeatureNames)); err != nil {
				return fmt.Errorf("class %q tree %d: %w", cls.Label, ti, err)
			}
		}
	}
	return nil
}

func (t *Tree) validate(featureCount int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Leaf != nil {
			continue
		}
		if n.Feature < 0 || n.Feature >= featureCount {
			return fmt.Errorf("node %d references feature %d, artifact has %d features", i, n.Feature, featureCount)
		}
		if n.Left < 0 || n.Left >= len(t.Nodes) || n.Right < 0 || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has child index out of range", i)
		}
		if n.Left <= i || n.Right <= i {
			return fmt.Errorf("node %d has a back or self reference, tree must be forward-linked", i)
		}
	}
	return nil
}
