package models

// Normalization methods. Each normalized value records the rule that
// produced it so downstream consumers can weigh the result.
const (
	MethodYearExact     = "year_exact"
	MethodYearBracketed = "year_bracketed"
	MethodYearCircaPM5  = "year_circa_pm5"
	MethodYearRange     = "year_range"
	MethodYearEmbedded  = "year_embedded"
	MethodUnparsed      = "unparsed"
	MethodMissing       = "missing"

	MethodPlaceAliasMap        = "place_alias_map"
	MethodPlaceCasefoldStrip   = "place_casefold_strip"
	MethodPublisherAliasMap    = "publisher_alias_map"
	MethodPublisherCasefold    = "publisher_casefold_strip"
	MethodAgentAliasMap        = "agent_alias_map"
	MethodAgentCasefoldStrip   = "agent_casefold_strip"
	MethodSubjectCasefoldStrip = "subject_casefold_strip"
)

// NormalizedDate is the parsed form of an imprint date. Start and End are
// nil when the value could not be parsed; Start <= End when both are set.
type NormalizedDate struct {
	Start         *int     `json:"start"`
	End           *int     `json:"end"`
	Label         string   `json:"label"`
	Confidence    float64  `json:"confidence"`
	Method        string   `json:"method"`
	EvidencePaths []string `json:"evidence_paths,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// NormalizedText is the normalized form of a place, publisher or agent.
// Value is the casefolded NFKC key used for equality filters; Display keeps
// a human-readable cleaned form.
type NormalizedText struct {
	Value         *string  `json:"value"`
	Display       string   `json:"display"`
	Confidence    float64  `json:"confidence"`
	Method        string   `json:"method"`
	EvidencePaths []string `json:"evidence_paths,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}
