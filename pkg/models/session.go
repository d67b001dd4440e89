package models

import (
	"time"
)

// SessionPhase is the dialogue phase of a session.
type SessionPhase string

const (
	// PhaseQueryDefinition means the user is still shaping the question.
	PhaseQueryDefinition SessionPhase = "query_definition"
	// PhaseCorpusExploration means a candidate set exists and further turns
	// explore it.
	PhaseCorpusExploration SessionPhase = "corpus_exploration"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one turn half stored in the session history. Assistant
// messages optionally carry the plan and candidate set they were built from.
type ChatMessage struct {
	Role         MessageRole   `json:"role"`
	Content      string        `json:"content"`
	QueryPlan    *QueryPlan    `json:"query_plan,omitempty"`
	CandidateSet *CandidateSet `json:"candidate_set,omitempty"`
	Enrichment   *EnrichmentResult `json:"enrichment,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// ActiveSubgroup is the candidate set currently under exploration.
type ActiveSubgroup struct {
	CandidateSet  *CandidateSet `json:"candidate_set"`
	DefiningQuery string        `json:"defining_query"`
	FilterSummary string        `json:"filter_summary"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Goal is a user-stated objective surfaced by the intent interpreter.
// Stored for the session projection; nothing consumes goals yet.
type Goal struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the durable per-conversation state. All mutation goes through
// the session store; turns within a session are serialized.
type Session struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Phase          SessionPhase    `json:"phase"`
	Messages       []ChatMessage   `json:"messages"`
	ActiveSubgroup *ActiveSubgroup `json:"active_subgroup,omitempty"`
	UserGoals      []Goal          `json:"user_goals,omitempty"`
	Context        map[string]any  `json:"context,omitempty"`
}

// QueryInterpretation is the intent interpreter's output for a
// query-definition turn.
type QueryInterpretation struct {
	OverallConfidence float64    `json:"overall_confidence"`
	QueryPlan         *QueryPlan `json:"query_plan"`
	Uncertainties     []string   `json:"uncertainties,omitempty"`
	Goal              string     `json:"goal,omitempty"`
}

// ExplorationIntent classifies a corpus-exploration turn.
type ExplorationIntent string

const (
	IntentNewQuery         ExplorationIntent = "NEW_QUERY"
	IntentRefinement       ExplorationIntent = "REFINEMENT"
	IntentAggregation      ExplorationIntent = "AGGREGATION"
	IntentMetadataQuestion ExplorationIntent = "METADATA_QUESTION"
	IntentEnrichment       ExplorationIntent = "ENRICHMENT_REQUEST"
	IntentRecommendation   ExplorationIntent = "RECOMMENDATION"
	IntentComparison       ExplorationIntent = "COMPARISON"
)
