// Package planner turns validated query plans into parameterized SQL and
// caches the natural-language compilation step. Stage A checks a plan
// against the schema contract; Stage B is a deterministic, total function
// from a valid plan to one SELECT plus its bind vector.
package planner

import (
	"fmt"
	"strconv"

	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/schema"
)

// Orderings the compiler accepts on QueryPlan.Order.
const (
	OrderDateAsc  = "date_asc"
	OrderDateDesc = "date_desc"
)

// allowedOps is the operator matrix per filter field. CONTAINS is limited
// to the full-text fields; RANGE to the date field.
var allowedOps = map[models.FilterField]map[models.FilterOp]bool{
	models.FieldTitle:     {models.OpEQ: true, models.OpIN: true, models.OpContains: true},
	models.FieldSubject:   {models.OpEQ: true, models.OpIN: true, models.OpContains: true},
	models.FieldPlace:     {models.OpEQ: true, models.OpIN: true},
	models.FieldPublisher: {models.OpEQ: true, models.OpIN: true},
	models.FieldAgent:     {models.OpEQ: true, models.OpIN: true},
	models.FieldLanguage:  {models.OpEQ: true, models.OpIN: true},
	models.FieldNote:      {models.OpEQ: true, models.OpIN: true},
	models.FieldDate:      {models.OpEQ: true, models.OpIN: true, models.OpRange: true},
}

func planInvalid(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrPlanInvalid,
		(&models.PlanValidationError{Path: path, Message: fmt.Sprintf(format, args...)}).Error())
}

// Validate runs Stage A: structural validation plus semantic checks against
// the schema contract. Unknown fields are ErrPlanUnsupported; everything
// else is ErrPlanInvalid with the offending JSON path.
func Validate(plan *models.QueryPlan) error {
	if plan == nil {
		return fmt.Errorf("%w: plan is nil", apperrors.ErrPlanInvalid)
	}
	if err := plan.ValidateStructure(); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrPlanInvalid, err.Error())
	}

	for i, f := range plan.Filters {
		path := fmt.Sprintf("filters[%d]", i)

		spec, ok := schema.Lookup(f.Field)
		if !ok {
			return fmt.Errorf("%w: %s.field: unknown field %q", apperrors.ErrPlanUnsupported, path, f.Field)
		}

		if !allowedOps[f.Field][f.Op] {
			return planInvalid(path+".op", "operator %s not valid for field %s", f.Op, f.Field)
		}
		if f.Op == models.OpContains && !spec.FullText {
			return planInvalid(path+".op", "CONTAINS requires a full-text field")
		}

		if f.Field == models.FieldDate {
			switch f.Op {
			case models.OpEQ:
				if _, err := strconv.Atoi(f.Value); err != nil {
					return planInvalid(path+".value", "date EQ requires a numeric year, got %q", f.Value)
				}
			case models.OpIN:
				for j, v := range f.Values {
					if _, err := strconv.Atoi(v); err != nil {
						return planInvalid(fmt.Sprintf("%s.values[%d]", path, j), "date IN requires numeric years, got %q", v)
					}
				}
			}
		} else if f.Op == models.OpRange {
			return planInvalid(path+".op", "RANGE is valid only on the date field")
		}
	}

	switch plan.Order {
	case "", OrderDateAsc, OrderDateDesc:
	default:
		return planInvalid("order", "unknown ordering %q", plan.Order)
	}

	return nil
}
