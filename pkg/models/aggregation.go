package models

// AggregationIntent selects a deterministic aggregation template.
type AggregationIntent string

const (
	AggTopPublishers     AggregationIntent = "top_publishers"
	AggDateDistribution  AggregationIntent = "date_distribution"
	AggLanguageBreakdown AggregationIntent = "language_breakdown"
	AggPlaceDistribution AggregationIntent = "place_distribution"
	AggSubjectClusters   AggregationIntent = "subject_clusters"
	AggAgentBreakdown    AggregationIntent = "agent_breakdown"
	AggCountOnly         AggregationIntent = "count_only"
)

// AggregationBin is one row of an aggregation result.
type AggregationBin struct {
	Key       string   `json:"key"`
	Count     int      `json:"count"`
	SampleIDs []string `json:"sample_ids,omitempty"`
}

// AggregationResult is the output of an aggregation over a record-id subset.
// Bins are sorted by count descending, then key ascending.
type AggregationResult struct {
	Intent AggregationIntent `json:"intent"`
	Bins   []AggregationBin  `json:"bins"`
	Total  int               `json:"total"`
}
