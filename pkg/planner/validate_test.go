package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/models"
)

func planWith(filters ...models.Filter) *models.QueryPlan {
	return &models.QueryPlan{Version: models.QueryPlanVersion, Filters: filters}
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	plan := planWith(
		models.Filter{Field: models.FieldPlace, Op: models.OpEQ, Value: "paris"},
		models.Filter{Field: models.FieldDate, Op: models.OpRange, Range: &models.FilterRange{Start: 1500, End: 1599}},
		models.Filter{Field: models.FieldTitle, Op: models.OpContains, Value: "astronomia nova"},
	)
	assert.NoError(t, Validate(plan))
}

func TestValidateUnknownFieldIsUnsupported(t *testing.T) {
	plan := planWith(models.Filter{Field: "binding", Op: models.OpEQ, Value: "vellum"})
	err := Validate(plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPlanUnsupported)
	assert.Contains(t, err.Error(), "filters[0].field")
}

func TestValidateContainsOnNonFullTextField(t *testing.T) {
	plan := planWith(models.Filter{Field: models.FieldPlace, Op: models.OpContains, Value: "par"})
	err := Validate(plan)
	require.ErrorIs(t, err, apperrors.ErrPlanInvalid)
	assert.Contains(t, err.Error(), "filters[0].op")
}

func TestValidateRangeOnlyOnDate(t *testing.T) {
	plan := planWith(models.Filter{Field: models.FieldPlace, Op: models.OpRange, Range: &models.FilterRange{Start: 1, End: 2}})
	err := Validate(plan)
	require.ErrorIs(t, err, apperrors.ErrPlanInvalid)
}

func TestValidateDateEQRequiresNumericYear(t *testing.T) {
	plan := planWith(models.Filter{Field: models.FieldDate, Op: models.OpEQ, Value: "circa 1650"})
	err := Validate(plan)
	require.ErrorIs(t, err, apperrors.ErrPlanInvalid)
	assert.Contains(t, err.Error(), "filters[0].value")
}

func TestValidateUnknownOrdering(t *testing.T) {
	plan := planWith(models.Filter{Field: models.FieldPlace, Op: models.OpEQ, Value: "paris"})
	plan.Order = "relevance"
	err := Validate(plan)
	require.ErrorIs(t, err, apperrors.ErrPlanInvalid)
	assert.Contains(t, err.Error(), "order")
}

func TestValidateStructuralErrorsWrapped(t *testing.T) {
	plan := &models.QueryPlan{Version: "2.0", Filters: []models.Filter{{Field: models.FieldPlace, Op: models.OpEQ, Value: "x"}}}
	assert.ErrorIs(t, Validate(plan), apperrors.ErrPlanInvalid)
}
