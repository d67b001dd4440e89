package dialogue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/incipit-labs/folio-engine/pkg/normalize"
	"github.com/incipit-labs/folio-engine/pkg/schema"
)

// indexReader answers the deterministic metadata questions the engine can
// serve without the language model: counts, date spans, authority ids.
type indexReader struct {
	db *sql.DB
}

// DateSpan returns the min/max publication years across the given records.
// ok is false when no record in the set has a parsed date.
func (r *indexReader) DateSpan(ctx context.Context, recordIDs []string) (int, int, bool, error) {
	if len(recordIDs) == 0 {
		return 0, 0, false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(recordIDs)), ",")
	args := make([]any, len(recordIDs))
	for i, id := range recordIDs {
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT MIN(imp.%s), MAX(imp.%s) FROM %s r
		 JOIN %s imp ON imp.%s = r.%s
		 WHERE r.%s IN (%s)`,
		schema.ColDateStart, schema.ColDateEnd, schema.TableRecords,
		schema.TableImprints, schema.ColRecordID, schema.ColRecordID,
		schema.ColMMSID, placeholders)

	var start, end sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&start, &end); err != nil {
		return 0, 0, false, fmt.Errorf("date span: %w", err)
	}
	if !start.Valid || !end.Valid {
		return 0, 0, false, nil
	}
	return int(start.Int64), int(end.Int64), true, nil
}

// AuthorityID finds a MARC $0 authority identifier for a named agent, if
// the index carries one.
func (r *indexReader) AuthorityID(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s = ? AND %s IS NOT NULL LIMIT 1`,
		schema.ColAuthorityID, schema.TableAgents, schema.ColAgentNorm, schema.ColAuthorityID)

	var id sql.NullString
	err := r.db.QueryRowContext(ctx, query, normalize.CleanKey(name)).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("authority lookup: %w", err)
	}
	return id.String, nil
}
