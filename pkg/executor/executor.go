// Package executor runs compiled query SQL and assembles candidate sets
// with per-candidate evidence.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/planner"
	"github.com/incipit-labs/folio-engine/pkg/sqlcheck"
)

// Executor runs compiled plans against the index. The database handle
// should be opened read-only; the executor never writes to it.
type Executor struct {
	db     *sql.DB
	runs   *RunStore
	logger *zap.Logger
}

// New creates an Executor. runs may be nil to disable run persistence.
func New(db *sql.DB, runs *RunStore, logger *zap.Logger) *Executor {
	return &Executor{db: db, runs: runs, logger: logger.Named("executor")}
}

// Execute compiles the plan, screens its parameters, runs the SELECT and
// its COUNT twin, and assembles the candidate set. Results are truncated
// to the plan's limit after ordering; TotalCount always reflects the full
// match count.
func (e *Executor) Execute(ctx context.Context, queryText string, plan *models.QueryPlan) (*models.CandidateSet, error) {
	cq, err := planner.Compile(plan)
	if err != nil {
		return nil, err
	}

	if findings := sqlcheck.CheckParams(cq.Args); len(findings) > 0 {
		return nil, fmt.Errorf("%w: parameter %d failed injection screen (fingerprint %s)",
			apperrors.ErrPlanInvalid, findings[0].ParamIndex, findings[0].Fingerprint)
	}

	rows, err := e.db.QueryContext(ctx, cq.SQL, cq.Args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var (
		candidates []models.Candidate
		current    *models.Candidate
		currentID  int64 = -1
		seen       map[string]bool
	)

	for rows.Next() {
		row, err := scanRow(rows, cq.Projections)
		if err != nil {
			return nil, err
		}

		if row.recordID != currentID {
			if current != nil {
				candidates = append(candidates, *current)
			}
			if len(candidates) >= cq.Limit {
				current = nil
				break
			}
			currentID = row.recordID
			current = &models.Candidate{
				RecordID:       row.mmsID,
				Title:          row.title,
				MatchRationale: cq.Rationale,
			}
			seen = make(map[string]bool)
		}

		for _, ev := range row.evidence {
			key := ev.DBColumn + "\x00" + ev.Value
			if seen[key] {
				continue
			}
			seen[key] = true
			current.Evidence = append(current.Evidence, ev)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan results: %w", err)
	}
	if current != nil {
		candidates = append(candidates, *current)
	}

	var total int
	if err := e.db.QueryRowContext(ctx, cq.CountSQL, cq.Args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count matches: %w", err)
	}

	cs := &models.CandidateSet{
		QueryText:   queryText,
		QueryPlan:   plan,
		SQLExecuted: cq.SQL,
		Candidates:  candidates,
		TotalCount:  total,
		Truncated:   total > len(candidates),
	}

	if e.runs != nil {
		runDir, err := e.runs.Persist(plan, cq.SQL, cs)
		if err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
		cs.RunDir = runDir
		e.logger.Info("Run persisted",
			zap.String("run_dir", runDir),
			zap.Int("candidates", len(candidates)),
			zap.Int("total", total))
	}

	return cs, nil
}

type scannedRow struct {
	recordID int64
	mmsID    string
	title    string
	evidence []models.Evidence
}

// scanRow scans one result row following the projection layout the
// compiler emitted, then maps the projected columns back to evidence.
func scanRow(rows *sql.Rows, projections []planner.FieldProjection) (*scannedRow, error) {
	var (
		recordID int64
		mmsID    string
		title    sql.NullString
	)
	dest := []any{&recordID, &mmsID, &title}

	type holder struct {
		raw, path, norm sql.NullString
		start, end      sql.NullInt64
		conf            sql.NullFloat64
	}
	holders := make([]holder, len(projections))

	for i, p := range projections {
		h := &holders[i]
		dest = append(dest, &h.raw, &h.path)
		if p.IsDate {
			dest = append(dest, &h.start, &h.end)
		} else if p.HasNorm {
			dest = append(dest, &h.norm)
		}
		if p.HasConf {
			dest = append(dest, &h.conf)
		}
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	row := &scannedRow{recordID: recordID, mmsID: mmsID, title: title.String}

	for i, p := range projections {
		h := &holders[i]
		if !h.raw.Valid {
			continue
		}
		ev := models.Evidence{
			FieldPath: h.path.String,
			DBColumn:  p.Spec.Table + "." + p.Spec.RawColumn,
			Value:     h.raw.String,
		}
		if ev.FieldPath == "" {
			ev.FieldPath = p.Spec.MARCPath
		}
		if p.IsDate && h.start.Valid {
			nv := formatDateRange(h.start.Int64, h.end)
			ev.NormalizedValue = &nv
		} else if h.norm.Valid {
			nv := h.norm.String
			ev.NormalizedValue = &nv
		}
		if h.conf.Valid {
			conf := h.conf.Float64
			ev.Confidence = &conf
		}
		row.evidence = append(row.evidence, ev)
	}

	return row, nil
}

func formatDateRange(start int64, end sql.NullInt64) string {
	if end.Valid && end.Int64 != start {
		return strconv.FormatInt(start, 10) + "-" + strconv.FormatInt(end.Int64, 10)
	}
	return strconv.FormatInt(start, 10)
}
