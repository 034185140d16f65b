// Package advisor enriches ranked candidates with clinical context: the
// three-level disease taxonomy, targeted follow-up questions, differential
// pairs, and evidence-based recommendations.  All knowledge lives in static
// in-memory tables; output is ordered and de-duplicated so the same input
// always yields the same enrichment.
package advisor

import (
	"strings"

	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

const (
	maxEnrichedCandidates = 3
	maxFollowUpQuestions  = 12
	maxDifferentials      = 6
)

// taxonomyEntry drives L1/L2 lookup and note-dependent L3 refinement.
type taxonomyEntry struct {
	l1        string
	l2        string
	l3Rules   []l3Rule
	defaultL3 string
}

// l3Rule refines the L3 label when any keyword appears in the notes.
type l3Rule struct {
	keywords []string
	label    string
}

var diseaseTaxonomy = map[string]taxonomyEntry{
	"cardiac_ischemia": {
		l1: "Cardiovascular",
		l2: "Coronary/Cardiac",
		l3Rules: []l3Rule{
			{keywords: []string{"chest pain", "chest tightness", "angina"}, label: "Angina"},
			{keywords: []string{"shortness of breath", "palpitations"}, label: "Arrhythmia"},
		},
		defaultL3: "Cardiac condition",
	},
	"hypertension": {
		l1: "Cardiovascular",
		l2: "Hypertension",
		l3Rules: []l3Rule{
			{keywords: []string{"headache", "dizziness"}, label: "Hypertensive disorder"},
		},
		defaultL3: "Essential hypertension",
	},
	"type_2_diabetes": {
		l1: "Endocrine",
		l2: "Diabetes",
		l3Rules: []l3Rule{
			{keywords: []string{"excessive thirst", "frequent urination", "increased hunger", "polyuria", "polydipsia"}, label: "Type 2 diabetes"},
		},
		defaultL3: "Diabetes (unspecified)",
	},
	"ocular_motor_dysfunction": {
		l1: "Ophthalmology",
		l2: "Neuro-ophthalmic",
		l3Rules: []l3Rule{
			{keywords: []string{"diplopia", "double vision", "ptosis"}, label: "Ocular motor dysfunction"},
		},
		defaultL3: "Eye disorder",
	},
	"peripheral_neuropathy": {
		l1: "Neurology",
		l2: "Neuromuscular/CNS",
		l3Rules: []l3Rule{
			{keywords: []string{"weakness", "numbness", "tingling"}, label: "Peripheral neuropathy"},
			{keywords: []string{"seizure", "epilepsy"}, label: "Epilepsy"},
		},
		defaultL3: "Neurological disorder",
	},
	"autoimmune_disorder": {
		l1: "Immunology",
		l2: "Autoimmune",
		l3Rules: []l3Rule{
			{keywords: []string{"steroid", "prednisone", "inflammation"}, label: "Steroid-responsive autoimmune"},
		},
		defaultL3: "Autoimmune disorder",
	},
}

var diseaseRecommendations = map[string][]string{
	"cardiac_ischemia": {
		"Recommend ECG examination",
		"Consider echocardiogram",
		"Monitor blood pressure and heart rate",
		"Quit smoking and limit alcohol",
		"Low-salt, low-fat diet",
		"Regular lipid profile monitoring",
	},
	"type_2_diabetes": {
		"Monitor blood glucose levels",
		"HbA1c testing",
		"Diet control",
		"Moderate exercise",
		"Regular eye examinations",
		"Foot care",
	},
	"hypertension": {
		"Regular blood pressure monitoring",
		"Low-salt diet",
		"Moderate exercise",
		"Weight control",
		"Quit smoking and limit alcohol",
		"Medication therapy",
	},
}

// followUpRule fires when a label matches or any keyword appears in notes.
type followUpRule struct {
	labels    []string
	keywords  []string
	questions []string
}

var followUpRules = []followUpRule{
	{
		labels:   []string{"cardiac_ischemia"},
		keywords: []string{"chest pain", "chest tightness", "palpitations"},
		questions: []string{
			"Chest pain is exertional and relieved by rest?",
			"Any radiation to left arm, jaw, or back?",
			"Associated diaphoresis or nausea?",
			"Duration and frequency of episodes?",
		},
	},
	{
		labels:   []string{"type_2_diabetes"},
		keywords: []string{"excessive thirst", "frequent urination", "increased hunger", "polyuria", "polydipsia"},
		questions: []string{
			"Recent HbA1c and fasting glucose values?",
			"Unintentional weight change?",
			"Polyuria/nocturia severity and onset?",
			"Any neuropathy or visual blurring?",
		},
	},
	{
		keywords: []string{"diplopia", "double vision", "ptosis"},
		questions: []string{
			"Do symptoms fluctuate with fatigue (suggesting myasthenia)?",
			"Any pupillary involvement or headache (for 3rd nerve palsy)?",
			"Onset abrupt vs progressive?",
		},
	},
	{
		labels:   []string{"peripheral_neuropathy"},
		keywords: []string{"weakness", "numbness", "tingling"},
		questions: []string{
			"Symmetry and distribution of weakness/numbness?",
			"Back pain or radicular features?",
			"Bowel/bladder involvement?",
		},
	},
}

// differentialRule contributes distinguishing pairs when a keyword matches.
type differentialRule struct {
	keywords []string
	entries  []string
}

var differentialRules = []differentialRule{
	{
		keywords: []string{"chest pain", "chest tightness", "shortness of breath"},
		entries: []string{
			"Stable angina vs gastroesophageal reflux: exertional chest pain relieved by rest favors angina; burning postprandial pain when lying down favors reflux",
			"Acute coronary syndrome vs musculoskeletal chest pain: pressure-like pain with diaphoresis suggests ACS; reproducible chest wall tenderness suggests musculoskeletal",
		},
	},
	{
		keywords: []string{"back pain", "leg pain", "sciatica"},
		entries: []string{
			"Lumbar canal stenosis vs sciatica: pain relieved by sitting suggests canal stenosis; sitting worsening discomfort suggests sciatica",
		},
	},
	{
		keywords: []string{"diplopia", "ptosis", "double vision"},
		entries: []string{
			"Myasthenia gravis vs cranial nerve palsy: fatigable ptosis or ophthalmoparesis favors MG; fixed pupil or severe headache suggests nerve palsy",
		},
	},
}

// Advisor applies the static knowledge tables.  The zero value is not
// usable; construct with New.
type Advisor struct{}

// New returns an advisor backed by the built-in knowledge tables.
func New() *Advisor {
	return &Advisor{}
}

// Enrichment is the advisor's addition to a fused result.
type Enrichment struct {
	FollowUpQuestions []string
	Differentials     []string
}

// Enrich annotates the top candidates in place with taxonomy and
// recommendations, and derives follow-up questions and differentials from
// the candidate labels and the clinical notes.
func (a *Advisor) Enrich(candidates []diagnosis.DiagnosisCandidate, clinicalNotes string) Enrichment {
	notes := strings.ToLower(clinicalNotes)

	top := candidates
	if len(top) > maxEnrichedCandidates {
		top = top[:maxEnrichedCandidates]
	}
	labelSet := make(map[string]struct{}, len(top))
	for i := range top {
		labelSet[top[i].DiseaseLabel] = struct{}{}
		top[i].Taxonomy = a.taxonomyFor(top[i].DiseaseLabel, notes)
		if recs, ok := diseaseRecommendations[top[i].DiseaseLabel]; ok {
			top[i].Recommendations = append([]string(nil), recs...)
		}
	}

	return Enrichment{
		FollowUpQuestions: a.followUps(labelSet, notes),
		Differentials:     a.differentials(notes),
	}
}

func (a *Advisor) taxonomyFor(label, notes string) *diagnosis.TaxonomyPath {
	entry, ok := diseaseTaxonomy[label]
	if !ok {
		return &diagnosis.TaxonomyPath{L1: "Unknown", L2: "Unknown", L3: label}
	}
	l3 := entry.defaultL3
	for _, rule := range entry.l3Rules {
		if containsAny(notes, rule.keywords) {
			l3 = rule.label
			break
		}
	}
	return &diagnosis.TaxonomyPath{L1: entry.l1, L2: entry.l2, L3: l3}
}

func (a *Advisor) followUps(labels map[string]struct{}, notes string) []string {
	var questions []string
	for _, rule := range followUpRules {
		if ruleMatches(rule.labels, labels) || containsAny(notes, rule.keywords) {
			questions = append(questions, rule.questions...)
		}
	}
	return dedupe(questions, maxFollowUpQuestions)
}

func (a *Advisor) differentials(notes string) []string {
	var entries []string
	for _, rule := range differentialRules {
		if containsAny(notes, rule.keywords) {
			entries = append(entries, rule.entries...)
		}
	}
	return dedupe(entries, maxDifferentials)
}

func ruleMatches(ruleLabels []string, labels map[string]struct{}) bool {
	for _, l := range ruleLabels {
		if _, ok := labels[l]; ok {
			return true
		}
	}
	return false
}

func containsAny(notes string, keywords []string) bool {
	if notes == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(notes, kw) {
			return true
		}
	}
	return false
}

// dedupe preserves first-seen order and caps the result.
func dedupe(items []string, limit int) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}
