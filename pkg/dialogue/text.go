package dialogue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/incipit-labs/folio-engine/pkg/models"
)

// pluralize renders "1 record" / "12 records".
func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}

// describeFilters renders a plan's filters as a compact AND expression,
// e.g. "place=paris AND date=1500-1599".
func describeFilters(plan *models.QueryPlan) string {
	if plan == nil || len(plan.Filters) == 0 {
		return "all records"
	}

	parts := make([]string, 0, len(plan.Filters))
	for _, f := range plan.Filters {
		switch f.Op {
		case models.OpRange:
			if f.Range != nil {
				parts = append(parts, fmt.Sprintf("%s=%d-%d", f.Field, f.Range.Start, f.Range.End))
			}
		case models.OpIN:
			parts = append(parts, fmt.Sprintf("%s in (%s)", f.Field, strings.Join(f.Values, ", ")))
		case models.OpContains:
			parts = append(parts, fmt.Sprintf("%s~%q", f.Field, f.Value))
		default:
			parts = append(parts, fmt.Sprintf("%s=%s", f.Field, f.Value))
		}
	}
	return strings.Join(parts, " AND ")
}

// candidateText summarizes an executed candidate set.
func candidateText(cs *models.CandidateSet) string {
	if cs.TotalCount == 0 {
		return "No records match those criteria. Widening the date range or dropping a filter may help."
	}

	var b strings.Builder
	if cs.Truncated {
		fmt.Fprintf(&b, "Found %s; showing the first %d.", pluralize(cs.TotalCount, "matching record"), len(cs.Candidates))
	} else {
		fmt.Fprintf(&b, "Found %s.", pluralize(cs.TotalCount, "matching record"))
	}

	preview := cs.Candidates
	if len(preview) > 3 {
		preview = preview[:3]
	}
	for _, c := range preview {
		fmt.Fprintf(&b, "\n- %s (%s)", c.Title, c.RecordID)
	}
	return b.String()
}

// suggestFollowups proposes next moves that the engine can actually serve.
func suggestFollowups(cs *models.CandidateSet) []string {
	if cs.TotalCount == 0 {
		return []string{"Try a broader date range", "Drop one of the filters"}
	}

	followups := []string{
		"Who are the main publishers?",
		"How are these distributed over time?",
	}
	if cs.Truncated {
		followups = append(followups, "Narrow the set, for example by place or language")
	}
	return followups
}

var aggregationLeads = map[models.AggregationIntent]string{
	models.AggTopPublishers:     "The most frequent publishers",
	models.AggDateDistribution:  "Publication dates by decade",
	models.AggLanguageBreakdown: "Languages in the set",
	models.AggPlaceDistribution: "Places of printing",
	models.AggSubjectClusters:   "The most common subjects",
	models.AggAgentBreakdown:    "The most frequent agents",
}

// aggregationText renders an aggregation result, leading with the largest
// bins.
func aggregationText(result *models.AggregationResult) string {
	if result.Intent == models.AggCountOnly {
		return fmt.Sprintf("The set holds %s.", pluralize(result.Total, "record"))
	}
	if len(result.Bins) == 0 {
		return "The set is empty, so there is nothing to summarize."
	}

	lead, ok := aggregationLeads[result.Intent]
	if !ok {
		lead = "Breakdown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s across %s:", lead, pluralize(result.Total, "record"))
	bins := result.Bins
	if len(bins) > 8 {
		bins = bins[:8]
	}
	for _, bin := range bins {
		fmt.Fprintf(&b, "\n- %s: %s", bin.Key, pluralize(bin.Count, "record"))
	}
	return b.String()
}

// metadataText answers the factual what-is-this-set question.
func metadataText(cs *models.CandidateSet, start, end int, haveDates bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The current set holds %s", pluralize(cs.TotalCount, "record"))
	if cs.Truncated {
		fmt.Fprintf(&b, " (%d loaded)", len(cs.Candidates))
	}
	if haveDates {
		if start == end {
			fmt.Fprintf(&b, ", all dated %d", start)
		} else {
			fmt.Fprintf(&b, ", spanning %d to %d", start, end)
		}
	}
	b.WriteString(".")
	return b.String()
}

// enrichmentText renders an external-authority lookup result, including the
// honest miss.
func enrichmentText(entityName string, result *models.EnrichmentResult) string {
	if result.Source == models.SourceNone {
		return fmt.Sprintf("I could not find reliable external information about %q. The catalog records themselves are unaffected.", entityName)
	}

	label := result.Label
	if label == "" {
		label = entityName
	}

	var b strings.Builder
	b.WriteString(label)
	if p := result.PersonInfo; p != nil && p.BirthYear != nil {
		if p.DeathYear != nil {
			fmt.Fprintf(&b, " (%d-%d)", *p.BirthYear, *p.DeathYear)
		} else {
			fmt.Fprintf(&b, " (b. %d)", *p.BirthYear)
		}
	}
	if result.Description != "" {
		fmt.Fprintf(&b, ": %s", result.Description)
	}
	if pl := result.PlaceInfo; pl != nil && pl.Country != "" {
		fmt.Fprintf(&b, " Located in %s.", pl.Country)
	}
	if result.WikidataID != "" {
		fmt.Fprintf(&b, " [Wikidata %s, confidence %.2f]", result.WikidataID, result.Confidence)
	}
	return b.String()
}

// recommendationText ranks candidates by evidence strength and names the
// top few.
func recommendationText(cs *models.CandidateSet) string {
	if len(cs.Candidates) == 0 {
		return "The set is empty, so there is nothing to recommend."
	}

	ranked := make([]models.Candidate, len(cs.Candidates))
	copy(ranked, cs.Candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i].Evidence) > len(ranked[j].Evidence)
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	var b strings.Builder
	b.WriteString("These records match your criteria on the most fields:")
	for _, c := range ranked {
		fmt.Fprintf(&b, "\n- %s (%s), %s", c.Title, c.RecordID, pluralize(len(c.Evidence), "matching field"))
	}
	return b.String()
}

// comparisonText contrasts the set along its place and date axes.
func comparisonText(places, dates *models.AggregationResult) string {
	var b strings.Builder
	b.WriteString("Comparing the set along place and date:")

	if len(places.Bins) > 0 {
		top := places.Bins
		if len(top) > 3 {
			top = top[:3]
		}
		parts := make([]string, len(top))
		for i, bin := range top {
			parts[i] = fmt.Sprintf("%s (%d)", bin.Key, bin.Count)
		}
		fmt.Fprintf(&b, "\n- Leading places: %s", strings.Join(parts, ", "))
	}
	if len(dates.Bins) > 0 {
		top := dates.Bins
		if len(top) > 3 {
			top = top[:3]
		}
		parts := make([]string, len(top))
		for i, bin := range top {
			parts[i] = fmt.Sprintf("%s (%d)", bin.Key, bin.Count)
		}
		fmt.Fprintf(&b, "\n- Busiest decades: %s", strings.Join(parts, ", "))
	}
	if len(places.Bins) == 0 && len(dates.Bins) == 0 {
		b.WriteString("\n- The set is empty.")
	}
	return b.String()
}
