package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/incipit-labs/folio-engine/pkg/models"
)

func TestMARCLanguageCode(t *testing.T) {
	cases := map[string]string{
		"latin":   "lat",
		"Latin":   "lat",
		"french":  "fre",
		"German":  "ger",
		"fr":      "fre",
		"de":      "ger",
		"deu":     "ger",
		"lat":     "lat",
		"Ancient Greek": "grc",
		"judeo-arabic":  "jrb",
		"klingon": "klingon",
	}
	for in, want := range cases {
		assert.Equal(t, want, MARCLanguageCode(in), "input %q", in)
	}
}

func TestMapLanguageFilters(t *testing.T) {
	plan := &models.QueryPlan{
		Version: models.QueryPlanVersion,
		Filters: []models.Filter{
			{Field: models.FieldLanguage, Op: models.OpEQ, Value: "French"},
			{Field: models.FieldLanguage, Op: models.OpIN, Values: []string{"latin", "german"}},
			{Field: models.FieldPlace, Op: models.OpEQ, Value: "Paris"},
		},
	}

	mapLanguageFilters(plan)

	assert.Equal(t, "fre", plan.Filters[0].Value)
	assert.Equal(t, []string{"lat", "ger"}, plan.Filters[1].Values)
	assert.Equal(t, "Paris", plan.Filters[2].Value)
}
