package prompts

import (
	"strings"
)

// ExploreSystemPrompt frames the corpus-exploration phase: classify what
// the researcher wants to do with the result set they are looking at.
const ExploreSystemPrompt = `You are a bibliographic search assistant. A researcher is exploring a set of catalog records produced by an earlier search. Classify their message into exactly one intent. Respond with a single JSON object and nothing else.`

// BuildExplorationPrompt creates the phase-two classification prompt.
func BuildExplorationPrompt(userMessage string, subgroupSummary string) string {
	var prompt strings.Builder

	prompt.WriteString("# Exploration Intent Classification\n\n")
	prompt.WriteString("## Current result set\n\n")
	prompt.WriteString(subgroupSummary)
	prompt.WriteString("\n\n## Researcher's message\n\n")
	prompt.WriteString(userMessage)
	prompt.WriteString("\n\n")
	prompt.WriteString(`## Intents

- NEW_QUERY: an unrelated new search ("now show me Dutch atlases")
- REFINEMENT: narrow the current set ("only the ones printed in Paris")
- AGGREGATION: summarize the set ("who are the main publishers?",
  "how are these distributed over time?")
- METADATA_QUESTION: a factual question about a specific record or the
  set itself ("how many are there?", "what language is the third one?")
- ENRICHMENT_REQUEST: external context on an entity ("who was this
  printer?", "where is Lugduni?")
- RECOMMENDATION: which records merit attention ("which should I look
  at first?")
- COMPARISON: compare records or subsets ("how do the Paris ones differ
  from the Lyon ones?")

For AGGREGATION also pick one aggregation intent: top_publishers,
date_distribution, language_breakdown, place_distribution,
subject_clusters, agent_breakdown, count_only.

For ENRICHMENT_REQUEST also name the entity and its type (person, place,
or publisher).

## Response format

{
  "intent": "NEW_QUERY|REFINEMENT|AGGREGATION|METADATA_QUESTION|ENRICHMENT_REQUEST|RECOMMENDATION|COMPARISON",
  "aggregation_intent": "top_publishers|...|count_only or null",
  "entity_name": "string or null",
  "entity_type": "person|place|publisher or null",
  "record_reference": "ordinal or identifier the researcher pointed at, or null"
}`)

	return prompt.String()
}
