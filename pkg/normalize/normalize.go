// Package normalize implements the deterministic per-field normalization
// rules for dates, places, publishers and agents. For a fixed alias map,
// every function here is a total deterministic map from raw string to
// normalized record; malformed input surfaces as a low-confidence method,
// never an error.
package normalize

import (
	"github.com/incipit-labs/folio-engine/pkg/models"
)

const (
	// ConfidenceAliasMap applies when the cleaned key hit the alias map.
	ConfidenceAliasMap = 0.95
	// ConfidenceCasefoldStrip applies to plain cleaning without an alias hit.
	ConfidenceCasefoldStrip = 0.80
)

// Normalizer applies the field rules with optional alias maps. The zero
// value (no alias maps) is valid.
type Normalizer struct {
	PlaceAliases     AliasMap
	PublisherAliases AliasMap
	AgentAliases     AliasMap
}

// NormalizeDate delegates to the package-level date rule table.
func (n *Normalizer) NormalizeDate(raw, sourcePath string) *models.NormalizedDate {
	return NormalizeDate(raw, sourcePath)
}

// NormalizePlace normalizes a place of publication.
func (n *Normalizer) NormalizePlace(raw, sourcePath string) *models.NormalizedText {
	return normalizeText(raw, sourcePath, n.PlaceAliases, models.MethodPlaceAliasMap, models.MethodPlaceCasefoldStrip)
}

// NormalizePublisher normalizes a publisher name.
func (n *Normalizer) NormalizePublisher(raw, sourcePath string) *models.NormalizedText {
	return normalizeText(raw, sourcePath, n.PublisherAliases, models.MethodPublisherAliasMap, models.MethodPublisherCasefold)
}

// NormalizeAgent normalizes a personal or corporate name.
func (n *Normalizer) NormalizeAgent(raw, sourcePath string) *models.NormalizedText {
	return normalizeText(raw, sourcePath, n.AgentAliases, models.MethodAgentAliasMap, models.MethodAgentCasefoldStrip)
}

// NormalizeSubject normalizes a subject heading. No alias map applies.
func (n *Normalizer) NormalizeSubject(raw, sourcePath string) *models.NormalizedText {
	return normalizeText(raw, sourcePath, nil, "", models.MethodSubjectCasefoldStrip)
}

func normalizeText(raw, sourcePath string, aliases AliasMap, aliasMethod, cleanMethod string) *models.NormalizedText {
	t := &models.NormalizedText{}
	if sourcePath != "" {
		t.EvidencePaths = []string{sourcePath}
	}

	display := CleanDisplay(raw)
	key := CleanKey(raw)
	t.Display = display

	if key == "" {
		t.Method = cleanMethod
		t.Warnings = append(t.Warnings, "value empty after cleaning")
		return t
	}

	if canonical, ok := aliases[key]; ok {
		t.Value = &canonical
		t.Method = aliasMethod
		t.Confidence = ConfidenceAliasMap
		return t
	}

	t.Value = &key
	t.Method = cleanMethod
	t.Confidence = ConfidenceCasefoldStrip
	return t
}

// EnrichRecord attaches the M2 normalization layer to a canonical record.
// The canonical fields are never touched; imprints_norm, agents_norm and
// subjects_norm stay index-parallel to their raw counterparts.
func (n *Normalizer) EnrichRecord(rec *models.CanonicalRecord) {
	m2 := &models.M2{
		ImprintsNorm: make([]models.ImprintNorm, len(rec.Imprints)),
	}

	for i, imp := range rec.Imprints {
		var in models.ImprintNorm
		if imp.Date != nil {
			in.DateNorm = n.NormalizeDate(imp.Date.Value, imp.Date.SourcePath)
		}
		if imp.Place != nil {
			in.PlaceNorm = n.NormalizePlace(imp.Place.Value, imp.Place.SourcePath)
		}
		if imp.Publisher != nil {
			in.PublisherNorm = n.NormalizePublisher(imp.Publisher.Value, imp.Publisher.SourcePath)
		}
		m2.ImprintsNorm[i] = in
	}

	if len(rec.Agents) > 0 {
		m2.AgentsNorm = make([]models.NormalizedText, len(rec.Agents))
		for i, a := range rec.Agents {
			if a.Name != nil {
				m2.AgentsNorm[i] = *n.NormalizeAgent(a.Name.Value, a.Name.SourcePath)
			}
		}
	}

	if len(rec.Subjects) > 0 {
		m2.SubjectsNorm = make([]models.NormalizedText, len(rec.Subjects))
		for i, s := range rec.Subjects {
			m2.SubjectsNorm[i] = *n.NormalizeSubject(s.Value, s.SourcePath)
		}
	}

	rec.M2 = m2
}
