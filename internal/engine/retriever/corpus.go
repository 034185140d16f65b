package retriever

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// corpusFile is the JSON snapshot layout: a versioned envelope around the
// document list, matching the export format of the offline embedding job.
type corpusFile struct {
	Version   string                        `json:"version"`
	Documents []diagnosis.KnowledgeDocument `json:"documents"`
}

// LoadCorpusFile reads a corpus snapshot from disk.  Any read, parse, or
// consistency failure maps to RET_002 so startup can fail with one code.
func LoadCorpusFile(path string) ([]diagnosis.KnowledgeDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCorpusLoadFailed, "failed to read corpus snapshot").
			WithDetail("path=" + path).WithCause(err)
	}
	docs, err := ParseCorpus(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCorpusLoadFailed, "corpus snapshot is invalid").
			WithDetail("path=" + path)
	}
	return docs, nil
}

// ParseCorpus decodes and checks a corpus snapshot held in memory.
func ParseCorpus(raw []byte) ([]diagnosis.KnowledgeDocument, error) {
	var f corpusFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("corpus is not valid JSON: %w", err)
	}

	seen := make(map[string]bool, len(f.Documents))
	for i, d := range f.Documents {
		if d.ID == "" {
			return nil, fmt.Errorf("document %d has an empty id", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate document id %q", d.ID)
		}
		seen[d.ID] = true
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("document %q has no embedding", d.ID)
		}
		if len(d.DiseaseTags) == 0 {
			return nil, fmt.Errorf("document %q has no disease tags", d.ID)
		}
	}
	return f.Documents, nil
}
