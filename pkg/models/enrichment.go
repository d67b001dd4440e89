package models

import "time"

// EnrichmentSource records which path produced an enrichment result.
type EnrichmentSource string

const (
	SourceWikidataIDChain EnrichmentSource = "wikidata_id_chain"
	SourceWikidataSearch  EnrichmentSource = "wikidata_search"
	SourceNone            EnrichmentSource = "none"
)

// EntityType is the kind of entity being enriched.
type EntityType string

const (
	EntityPerson    EntityType = "person"
	EntityPlace     EntityType = "place"
	EntityPublisher EntityType = "publisher"
)

// PersonInfo holds biographical detail fetched for a person entity.
type PersonInfo struct {
	BirthYear   *int   `json:"birth_year,omitempty"`
	DeathYear   *int   `json:"death_year,omitempty"`
	Occupation  string `json:"occupation,omitempty"`
	Nationality string `json:"nationality,omitempty"`
}

// PlaceInfo holds geographic detail fetched for a place entity.
type PlaceInfo struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Country   string   `json:"country,omitempty"`
}

// EnrichmentResult is an immutable snapshot of an external-authority lookup.
type EnrichmentResult struct {
	EntityType    EntityType       `json:"entity_type"`
	EntityValue   string           `json:"entity_value"`
	NormalizedKey string           `json:"normalized_key"`
	WikidataID    string           `json:"wikidata_id,omitempty"`
	VIAFID        string           `json:"viaf_id,omitempty"`
	ISNIID        string           `json:"isni_id,omitempty"`
	LOCID         string           `json:"loc_id,omitempty"`
	NLIID         string           `json:"nli_id,omitempty"`
	PersonInfo    *PersonInfo      `json:"person_info,omitempty"`
	PlaceInfo     *PlaceInfo       `json:"place_info,omitempty"`
	Label         string           `json:"label,omitempty"`
	Description   string           `json:"description,omitempty"`
	Source        EnrichmentSource `json:"source"`
	Confidence    float64          `json:"confidence"`
	Raw           string           `json:"raw,omitempty"`
	FetchedAt     time.Time        `json:"fetched_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// Expired reports whether the cached result is past its TTL at now.
func (r *EnrichmentResult) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
