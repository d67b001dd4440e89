// Package prompts builds the language-model prompts used by the dialogue
// engine. The model never sees the database: it only maps user language
// onto the structured query-plan vocabulary defined here.
package prompts

import (
	"fmt"
	"strings"
)

// InterpretSystemPrompt frames the query-definition phase: turn a
// researcher's request about a rare-book catalog into a structured plan.
const InterpretSystemPrompt = `You are a bibliographic search assistant for a rare-book catalog indexed from MARC records. Your only job is to translate the researcher's request into a structured query plan. You never invent records, never answer from memory, and never produce SQL. Respond with a single JSON object and nothing else.`

// planVocabulary describes the filter fields and operators the plan
// compiler accepts. Kept as one block so interpretation and refinement
// prompts stay consistent.
const planVocabulary = `Available filter fields:
- title: words or phrases from the title (CONTAINS for words/phrases, EQ for an exact title)
- subject: subject headings, e.g. "botany", "alchemy" (CONTAINS or EQ)
- place: place of publication, e.g. "paris", "venezia" (EQ or IN)
- publisher: printer or publisher name (EQ or IN)
- agent: author, editor, translator, engraver (EQ or IN)
- language: ISO 639-2/B code, e.g. "lat", "fre", "ger" (EQ or IN)
- date: publication year (EQ for a single year, RANGE for a span)
- note: free-text notes, e.g. provenance or binding notes (EQ on the exact note)

Operators:
- EQ: {"field": "...", "op": "EQ", "value": "..."}
- IN: {"field": "...", "op": "IN", "values": ["...", "..."]}
- RANGE: {"field": "date", "op": "RANGE", "range": {"start": 1500, "end": 1599}}
- CONTAINS: {"field": "...", "op": "CONTAINS", "value": "..."}

All filters are combined with AND. Use lowercase values. Century
expressions map to RANGE ("16th century" is 1500-1599). Language names
map to MARC codes ("latin" is "lat", "french" is "fre", "german" is
"ger").`

// BuildInterpretPrompt creates the phase-one prompt: interpret a free-text
// query into a plan with a self-assessed confidence and any uncertainties.
func BuildInterpretPrompt(userMessage string, priorTurns []string) string {
	var prompt strings.Builder

	prompt.WriteString("# Query Interpretation\n\n")
	prompt.WriteString(planVocabulary)
	prompt.WriteString("\n\n")

	if len(priorTurns) > 0 {
		prompt.WriteString("## Conversation so far\n\n")
		for _, turn := range priorTurns {
			prompt.WriteString(turn)
			prompt.WriteString("\n")
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Researcher's message\n\n")
	prompt.WriteString(userMessage)
	prompt.WriteString("\n\n")

	prompt.WriteString(`## Response format

Return exactly one JSON object:

{
  "overall_confidence": 0.0-1.0,
  "query_plan": {"version": "1.0", "filters": [...]},
  "uncertainties": ["plain-language question for anything ambiguous"],
  "goal": "one sentence describing what the researcher seems to be after, or null"
}

Rate overall_confidence honestly: below 0.85 means you need
clarification, and each uncertainty must be a question the researcher
can answer. If the message contains no searchable criteria at all, use
confidence 0.0 and an empty filters array.`)

	return prompt.String()
}

// BuildRefinementPrompt asks the model for additional filters to AND onto
// an existing plan, given the refinement message.
func BuildRefinementPrompt(userMessage, currentPlanJSON string) string {
	var prompt strings.Builder

	prompt.WriteString("# Query Refinement\n\n")
	prompt.WriteString(planVocabulary)
	prompt.WriteString("\n\n## Current plan\n\n")
	prompt.WriteString(currentPlanJSON)
	prompt.WriteString("\n\n## Researcher's refinement\n\n")
	prompt.WriteString(userMessage)
	prompt.WriteString("\n\n")
	prompt.WriteString(`## Response format

Return exactly one JSON object with only the NEW filters implied by the
refinement (do not repeat filters already in the current plan):

{
  "overall_confidence": 0.0-1.0,
  "query_plan": {"version": "1.0", "filters": [...new filters only...]},
  "uncertainties": []
}`)

	return prompt.String()
}

// BuildClarificationText renders the uncertainties back to the researcher.
func BuildClarificationText(uncertainties []string) string {
	var b strings.Builder
	b.WriteString("I want to make sure I search for the right thing. ")
	for i, u := range uncertainties {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(fmt.Sprintf("%s", u))
	}
	return b.String()
}
