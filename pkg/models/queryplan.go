package models

import (
	"fmt"
)

// QueryPlanVersion is the only plan version this engine accepts.
const QueryPlanVersion = "1.0"

// FilterField names a queryable dimension of the index. The schema contract
// maps each field to its SQL column, join path and MARC source path.
type FilterField string

const (
	FieldTitle     FilterField = "title"
	FieldSubject   FilterField = "subject"
	FieldPlace     FilterField = "place"
	FieldPublisher FilterField = "publisher"
	FieldAgent     FilterField = "agent"
	FieldLanguage  FilterField = "language"
	FieldDate      FilterField = "date"
	FieldNote      FilterField = "note"
)

// FilterOp is the comparison operator of a filter.
type FilterOp string

const (
	OpEQ       FilterOp = "EQ"
	OpIN       FilterOp = "IN"
	OpRange    FilterOp = "RANGE"
	OpContains FilterOp = "CONTAINS"
)

// FilterRange is the inclusive bound pair of a RANGE filter.
type FilterRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Filter is one predicate of a query plan. Exactly one of Value, Values or
// Range is set, according to Op.
type Filter struct {
	Field  FilterField  `json:"field"`
	Op     FilterOp     `json:"op"`
	Value  string       `json:"value,omitempty"`
	Values []string     `json:"values,omitempty"`
	Range  *FilterRange `json:"range,omitempty"`
}

// QueryPlan is the validated, versioned output of the natural-language
// compilation step. It is the only structure the SQL compiler accepts.
type QueryPlan struct {
	Version string   `json:"version"`
	Intent  string   `json:"intent"`
	Filters []Filter `json:"filters"`
	Limit   int      `json:"limit,omitempty"`
	Order   string   `json:"order,omitempty"`
}

// PlanValidationError reports a structural violation with the offending
// JSON path, e.g. "filters[2].range".
type PlanValidationError struct {
	Path    string
	Message string
}

func (e *PlanValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidateStructure checks the plan's internal invariants: version, operator
// shapes, range ordering. Field existence against the schema contract is the
// planner's responsibility.
func (p *QueryPlan) ValidateStructure() error {
	if p.Version != QueryPlanVersion {
		return &PlanValidationError{Path: "version", Message: fmt.Sprintf("unsupported version %q", p.Version)}
	}
	if len(p.Filters) == 0 {
		return &PlanValidationError{Path: "filters", Message: "at least one filter required"}
	}
	for i, f := range p.Filters {
		path := fmt.Sprintf("filters[%d]", i)
		if f.Field == "" {
			return &PlanValidationError{Path: path + ".field", Message: "field required"}
		}
		switch f.Op {
		case OpEQ:
			if f.Value == "" {
				return &PlanValidationError{Path: path + ".value", Message: "EQ requires a value"}
			}
		case OpIN:
			if len(f.Values) == 0 {
				return &PlanValidationError{Path: path + ".values", Message: "IN requires non-empty values"}
			}
		case OpRange:
			if f.Range == nil {
				return &PlanValidationError{Path: path + ".range", Message: "RANGE requires start and end"}
			}
			if f.Range.Start > f.Range.End {
				return &PlanValidationError{Path: path + ".range", Message: fmt.Sprintf("start %d exceeds end %d", f.Range.Start, f.Range.End)}
			}
		case OpContains:
			if f.Value == "" {
				return &PlanValidationError{Path: path + ".value", Message: "CONTAINS requires a value"}
			}
		default:
			return &PlanValidationError{Path: path + ".op", Message: fmt.Sprintf("unknown operator %q", f.Op)}
		}
	}
	if p.Limit < 0 {
		return &PlanValidationError{Path: "limit", Message: "limit must be non-negative"}
	}
	return nil
}
