// Package aggregate answers summary questions over a fixed record subset
// with template-selected, parameterized SQL. The user's text never reaches
// this package; only an intent and a record-id list do.
package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/schema"
)

// ChunkThreshold is the largest id list bound inline; larger sets go
// through a temp table.
const ChunkThreshold = 900

// maxSampleIDs caps the sample ids attached to each bin.
const maxSampleIDs = 3

// Aggregator runs aggregation templates against the index.
type Aggregator struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates an Aggregator over the index database.
func New(db *sql.DB, logger *zap.Logger) *Aggregator {
	return &Aggregator{db: db, logger: logger.Named("aggregator")}
}

type template struct {
	join    string
	keyExpr string
	groupBy string
}

var templates = map[models.AggregationIntent]template{
	models.AggTopPublishers: {
		join:    fmt.Sprintf("JOIN %s imp ON imp.%s = r.%s", schema.TableImprints, schema.ColRecordID, schema.ColRecordID),
		keyExpr: "imp." + schema.ColPublisherNorm,
		groupBy: "imp." + schema.ColPublisherNorm,
	},
	models.AggDateDistribution: {
		join:    fmt.Sprintf("JOIN %s imp ON imp.%s = r.%s", schema.TableImprints, schema.ColRecordID, schema.ColRecordID),
		keyExpr: fmt.Sprintf("printf('%%ds', (imp.%s / 10) * 10)", schema.ColDateStart),
		groupBy: fmt.Sprintf("(imp.%s / 10) * 10", schema.ColDateStart),
	},
	models.AggLanguageBreakdown: {
		join:    fmt.Sprintf("JOIN %s l ON l.%s = r.%s", schema.TableLanguages, schema.ColRecordID, schema.ColRecordID),
		keyExpr: "l." + schema.ColLanguage,
		groupBy: "l." + schema.ColLanguage,
	},
	models.AggPlaceDistribution: {
		join:    fmt.Sprintf("JOIN %s imp ON imp.%s = r.%s", schema.TableImprints, schema.ColRecordID, schema.ColRecordID),
		keyExpr: "imp." + schema.ColPlaceNorm,
		groupBy: "imp." + schema.ColPlaceNorm,
	},
	models.AggSubjectClusters: {
		join:    fmt.Sprintf("JOIN %s s ON s.%s = r.%s", schema.TableSubjects, schema.ColRecordID, schema.ColRecordID),
		keyExpr: "s." + schema.ColSubjectNorm,
		groupBy: "s." + schema.ColSubjectNorm,
	},
	models.AggAgentBreakdown: {
		join:    fmt.Sprintf("JOIN %s a ON a.%s = r.%s", schema.TableAgents, schema.ColRecordID, schema.ColRecordID),
		keyExpr: "a." + schema.ColAgentNorm,
		groupBy: "a." + schema.ColAgentNorm,
	},
}

// Aggregate runs the template for the intent over the given record ids
// (mms_ids). An empty id list yields zero bins and total zero.
func (a *Aggregator) Aggregate(ctx context.Context, intent models.AggregationIntent, recordIDs []string) (*models.AggregationResult, error) {
	if _, ok := templates[intent]; !ok && intent != models.AggCountOnly {
		return nil, fmt.Errorf("unknown aggregation intent %q", intent)
	}

	result := &models.AggregationResult{Intent: intent, Bins: []models.AggregationBin{}}
	if len(recordIDs) == 0 {
		return result, nil
	}

	// Temp tables are connection-local, so the whole aggregation runs on
	// one pinned connection.
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	pred, args, cleanup, err := bindIDs(ctx, conn, recordIDs)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	totalSQL := fmt.Sprintf("SELECT COUNT(DISTINCT r.%s) FROM %s r WHERE %s",
		schema.ColRecordID, schema.TableRecords, pred)
	if err := conn.QueryRowContext(ctx, totalSQL, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("count subset: %w", err)
	}

	if intent == models.AggCountOnly {
		return result, nil
	}

	tpl := templates[intent]
	query := fmt.Sprintf(
		`SELECT %s AS bin_key, COUNT(DISTINCT r.%s) AS n, group_concat(DISTINCT r.%s) AS samples
FROM %s r
%s
WHERE %s AND %s IS NOT NULL
GROUP BY %s
ORDER BY n DESC, bin_key ASC`,
		tpl.keyExpr, schema.ColRecordID, schema.ColMMSID,
		schema.TableRecords, tpl.join, pred, tpl.keyExpr, tpl.groupBy)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", intent, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		var samples sql.NullString
		if err := rows.Scan(&key, &count, &samples); err != nil {
			return nil, fmt.Errorf("scan bin: %w", err)
		}
		bin := models.AggregationBin{Key: key, Count: count}
		if samples.Valid {
			ids := strings.Split(samples.String, ",")
			if len(ids) > maxSampleIDs {
				ids = ids[:maxSampleIDs]
			}
			bin.SampleIDs = ids
		}
		result.Bins = append(result.Bins, bin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read bins: %w", err)
	}

	a.logger.Debug("Aggregation complete",
		zap.String("intent", string(intent)),
		zap.Int("ids", len(recordIDs)),
		zap.Int("bins", len(result.Bins)))
	return result, nil
}

// bindIDs produces a predicate restricting records to the id set: an
// inline IN list up to ChunkThreshold ids, a temp table beyond it.
func bindIDs(ctx context.Context, conn *sql.Conn, ids []string) (string, []any, func(), error) {
	noop := func() {}

	if len(ids) <= ChunkThreshold {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		return fmt.Sprintf("r.%s IN (%s)", schema.ColMMSID, placeholders), args, noop, nil
	}

	if _, err := conn.ExecContext(ctx,
		fmt.Sprintf("CREATE TEMP TABLE agg_ids (%s TEXT PRIMARY KEY)", schema.ColMMSID)); err != nil {
		return "", nil, noop, fmt.Errorf("create temp id table: %w", err)
	}
	cleanup := func() {
		conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS temp.agg_ids")
	}

	for start := 0; start < len(ids); start += ChunkThreshold {
		end := start + ChunkThreshold
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		placeholders := strings.TrimSuffix(strings.Repeat("(?),", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		if _, err := conn.ExecContext(ctx,
			fmt.Sprintf("INSERT OR IGNORE INTO temp.agg_ids (%s) VALUES %s", schema.ColMMSID, placeholders),
			args...); err != nil {
			cleanup()
			return "", nil, noop, fmt.Errorf("fill temp id table: %w", err)
		}
	}

	pred := fmt.Sprintf("r.%s IN (SELECT %s FROM temp.agg_ids)", schema.ColMMSID, schema.ColMMSID)
	return pred, nil, cleanup, nil
}
