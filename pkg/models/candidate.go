package models

// Evidence points from a candidate back to the MARC field and DB column
// that caused its inclusion.
type Evidence struct {
	FieldPath       string   `json:"field_path"`
	DBColumn        string   `json:"db_column"`
	Value           string   `json:"value"`
	NormalizedValue *string  `json:"normalized_value,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

// Candidate is one matching record with its supporting evidence.
type Candidate struct {
	RecordID       string     `json:"record_id"`
	Title          string     `json:"title"`
	MatchRationale string     `json:"match_rationale"`
	Evidence       []Evidence `json:"evidence"`
}

// CandidateSet is the authoritative answer shape: record ids plus
// per-record evidence plus the exact SQL and plan that produced them.
type CandidateSet struct {
	QueryText   string      `json:"query_text"`
	QueryPlan   *QueryPlan  `json:"query_plan"`
	SQLExecuted string      `json:"sql_executed"`
	Candidates  []Candidate `json:"candidates"`
	TotalCount  int         `json:"total_count"`
	Truncated   bool        `json:"truncated"`

	// RunDir is where the run artifacts were persisted, when enabled.
	RunDir string `json:"run_dir,omitempty"`
}

// RecordIDs returns the candidate record ids in order.
func (cs *CandidateSet) RecordIDs() []string {
	ids := make([]string, len(cs.Candidates))
	for i, c := range cs.Candidates {
		ids[i] = c.RecordID
	}
	return ids
}
