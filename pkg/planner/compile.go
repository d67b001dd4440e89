package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
	"github.com/incipit-labs/folio-engine/pkg/schema"
)

// DefaultLimit applies when the plan does not set one.
const DefaultLimit = 50

// FieldProjection records which evidence columns for one filter field were
// projected, in SELECT order. The executor scans by walking these in the
// same order the compiler emitted them.
type FieldProjection struct {
	Field   models.FilterField
	Spec    schema.FieldSpec
	HasNorm bool
	HasConf bool
	IsDate  bool
}

// CompiledQuery is the Stage B output: one SELECT, its COUNT twin over the
// same WHERE, a shared bind vector, and the projection layout.
type CompiledQuery struct {
	SQL         string
	CountSQL    string
	Args        []any
	Projections []FieldProjection
	Limit       int
	Rationale   string
}

// Compile translates a validated plan into parameterized SQL. The SQL text
// references only schema-contract constants; every user-derived value goes
// through the bind vector.
func Compile(plan *models.QueryPlan) (*CompiledQuery, error) {
	if err := Validate(plan); err != nil {
		return nil, err
	}

	limit := plan.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var (
		joins       []string
		seenAlias   = map[string]bool{}
		projections []FieldProjection
		seenField   = map[models.FilterField]bool{}
		predicates  []string
		args        []any
	)

	for _, f := range plan.Filters {
		spec, _ := schema.Lookup(f.Field)

		if !seenAlias[spec.Alias] {
			seenAlias[spec.Alias] = true
			joins = append(joins, spec.Join)
		}
		if !seenField[f.Field] {
			seenField[f.Field] = true
			projections = append(projections, FieldProjection{
				Field:   f.Field,
				Spec:    spec,
				HasNorm: spec.NormColumn != "" && f.Field != models.FieldDate,
				HasConf: spec.ConfColumn != "",
				IsDate:  f.Field == models.FieldDate,
			})
		}

		pred, predArgs := compileFilter(f, spec)
		predicates = append(predicates, pred)
		args = append(args, predArgs...)
	}

	selectCols := []string{
		fmt.Sprintf("r.%s AS record_id", schema.ColRecordID),
		fmt.Sprintf("r.%s AS mms_id", schema.ColMMSID),
		fmt.Sprintf("(SELECT %s FROM %s WHERE %s = r.%s ORDER BY %s LIMIT 1) AS display_title",
			schema.ColTitle, schema.TableTitles, schema.ColRecordID, schema.ColRecordID, schema.ColOccurrence),
	}
	for _, p := range projections {
		selectCols = append(selectCols, projectionColumns(p)...)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selectCols, ", "))
	b.WriteString("\nFROM ")
	b.WriteString(schema.TableRecords)
	b.WriteString(" r")
	for _, j := range joins {
		b.WriteString("\n")
		b.WriteString(j)
	}
	b.WriteString("\nWHERE ")
	b.WriteString(strings.Join(predicates, " AND "))
	b.WriteString("\nORDER BY ")
	b.WriteString(orderClause(plan.Order))

	countSQL := fmt.Sprintf("SELECT COUNT(DISTINCT r.%s) FROM %s r\n%s\nWHERE %s",
		schema.ColRecordID, schema.TableRecords, strings.Join(joins, "\n"), strings.Join(predicates, " AND "))

	return &CompiledQuery{
		SQL:         b.String(),
		CountSQL:    countSQL,
		Args:        args,
		Projections: projections,
		Limit:       limit,
		Rationale:   Rationale(plan),
	}, nil
}

func projectionColumns(p FieldProjection) []string {
	cols := []string{
		fmt.Sprintf("%s AS %s_raw", p.Spec.Qualified(p.Spec.RawColumn), p.Field),
		fmt.Sprintf("%s AS %s_path", p.Spec.Qualified(p.Spec.PathColumn), p.Field),
	}
	if p.IsDate {
		cols = append(cols,
			fmt.Sprintf("%s AS date_start", p.Spec.Qualified(schema.ColDateStart)),
			fmt.Sprintf("%s AS date_end", p.Spec.Qualified(schema.ColDateEnd)),
		)
	} else if p.HasNorm {
		cols = append(cols, fmt.Sprintf("%s AS %s_norm", p.Spec.Qualified(p.Spec.NormColumn), p.Field))
	}
	if p.HasConf {
		cols = append(cols, fmt.Sprintf("%s AS %s_conf", p.Spec.Qualified(p.Spec.ConfColumn), p.Field))
	}
	return cols
}

func compileFilter(f models.Filter, spec schema.FieldSpec) (string, []any) {
	switch f.Op {
	case models.OpContains:
		// Single predicate against the FTS shadow table; the bind value is
		// phrase-quoted only here, never for EQ/IN on the same field.
		pred := fmt.Sprintf("%s IN (SELECT rowid FROM %s WHERE %s MATCH ?)",
			spec.Qualified(schema.ColID), spec.FTSTable, spec.FTSTable)
		return pred, []any{QuoteFTSPhrase(foldParam(f.Field, f.Value))}

	case models.OpEQ:
		if f.Field == models.FieldDate {
			year, _ := strconv.Atoi(f.Value)
			pred := fmt.Sprintf("%s <= ? AND %s >= ?",
				spec.Qualified(schema.ColDateStart), spec.Qualified(schema.ColDateEnd))
			return "(" + pred + ")", []any{year, year}
		}
		return fmt.Sprintf("%s = ?", eqColumn(spec, f.Field)), []any{foldParam(f.Field, f.Value)}

	case models.OpIN:
		if f.Field == models.FieldDate {
			var ors []string
			var args []any
			for _, v := range f.Values {
				year, _ := strconv.Atoi(v)
				ors = append(ors, fmt.Sprintf("(%s <= ? AND %s >= ?)",
					spec.Qualified(schema.ColDateStart), spec.Qualified(schema.ColDateEnd)))
				args = append(args, year, year)
			}
			return "(" + strings.Join(ors, " OR ") + ")", args
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Values)), ",")
		args := make([]any, len(f.Values))
		for i, v := range f.Values {
			args[i] = foldParam(f.Field, v)
		}
		return fmt.Sprintf("%s IN (%s)", eqColumn(spec, f.Field), placeholders), args

	case models.OpRange:
		pred := fmt.Sprintf("%s >= ? AND %s <= ?",
			spec.Qualified(schema.ColDateStart), spec.Qualified(schema.ColDateEnd))
		return "(" + pred + ")", []any{f.Range.Start, f.Range.End}
	}
	return "", nil
}

// eqColumn picks the column EQ and IN compare against: the normalized key
// column where one exists, otherwise a lowercased raw column.
func eqColumn(spec schema.FieldSpec, field models.FilterField) string {
	if spec.NormColumn != "" && field != models.FieldDate {
		return spec.Qualified(spec.NormColumn)
	}
	return fmt.Sprintf("lower(%s)", spec.Qualified(spec.Column))
}

// foldParam case-folds a scalar text parameter before binding. Fields with
// a normalized key column fold with the same key cleaning that built the
// column; plain text fields just lowercase.
func foldParam(field models.FilterField, value string) string {
	switch field {
	case models.FieldPlace, models.FieldPublisher, models.FieldAgent, models.FieldSubject:
		return normalize.CleanKey(value)
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

// QuoteFTSPhrase prepares a CONTAINS value for FTS MATCH. Anything beyond
// a single bareword token becomes a quoted phrase with embedded double
// quotes doubled, so punctuation never reaches the MATCH parser raw.
func QuoteFTSPhrase(value string) string {
	for _, r := range value {
		if !isFTSBareword(r) {
			return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
		}
	}
	return value
}

// isFTSBareword reports whether r is a token character under the default
// unicode61 tokenizer: ASCII alphanumerics, underscore, or anything above
// ASCII.
func isFTSBareword(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	}
	return r > 127
}

func orderClause(order string) string {
	switch order {
	case OrderDateAsc:
		return fmt.Sprintf("(SELECT MIN(%s) FROM %s WHERE %s = r.%s) ASC, r.%s ASC",
			schema.ColDateStart, schema.TableImprints, schema.ColRecordID, schema.ColRecordID, schema.ColMMSID)
	case OrderDateDesc:
		return fmt.Sprintf("(SELECT MAX(%s) FROM %s WHERE %s = r.%s) DESC, r.%s ASC",
			schema.ColDateEnd, schema.TableImprints, schema.ColRecordID, schema.ColRecordID, schema.ColMMSID)
	default:
		return fmt.Sprintf("r.%s ASC", schema.ColMMSID)
	}
}

// Rationale renders the machine-readable filter summary attached to every
// candidate, e.g. `place=paris AND date BETWEEN 1500 AND 1599`.
func Rationale(plan *models.QueryPlan) string {
	parts := make([]string, 0, len(plan.Filters))
	for _, f := range plan.Filters {
		switch f.Op {
		case models.OpEQ:
			parts = append(parts, fmt.Sprintf("%s=%s", f.Field, foldParam(f.Field, f.Value)))
		case models.OpIN:
			folded := make([]string, len(f.Values))
			for i, v := range f.Values {
				folded[i] = foldParam(f.Field, v)
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", f.Field, strings.Join(folded, ", ")))
		case models.OpRange:
			parts = append(parts, fmt.Sprintf("%s BETWEEN %d AND %d", f.Field, f.Range.Start, f.Range.End))
		case models.OpContains:
			parts = append(parts, fmt.Sprintf("%s CONTAINS %q", f.Field, foldParam(f.Field, f.Value)))
		}
	}
	return strings.Join(parts, " AND ")
}
