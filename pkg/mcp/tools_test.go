package mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/aggregate"
	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/executor"
	"github.com/incipit-labs/folio-engine/pkg/indexer"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
)

func newToolDeps(t *testing.T) *ToolDeps {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := database.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	records := []*models.CanonicalRecord{
		{
			MMSID: "990001",
			Title: &models.SourcedValue{Value: "Astronomia nova", SourcePath: "245[0]$a"},
			Imprints: []models.Imprint{{
				Place:     &models.SourcedValue{Value: "Paris :", SourcePath: "260[0]$a"},
				Publisher: &models.SourcedValue{Value: "Cramoisy", SourcePath: "260[0]$b"},
				Date:      &models.SourcedValue{Value: "1680", SourcePath: "260[0]$c"},
			}},
			Languages: []models.SourcedValue{{Value: "lat", SourcePath: "008/35-37"}},
		},
		{
			MMSID: "990002",
			Title: &models.SourcedValue{Value: "De revolutionibus", SourcePath: "245[0]$a"},
			Imprints: []models.Imprint{{
				Place:     &models.SourcedValue{Value: "Venetiis", SourcePath: "260[0]$a"},
				Publisher: &models.SourcedValue{Value: "Giunta", SourcePath: "260[0]$b"},
				Date:      &models.SourcedValue{Value: "1543", SourcePath: "260[0]$c"},
			}},
			Languages: []models.SourcedValue{{Value: "lat", SourcePath: "008/35-37"}},
		},
	}
	n := &normalize.Normalizer{}
	for _, rec := range records {
		n.EnrichRecord(rec)
	}

	ix := indexer.New(db, logger)
	require.NoError(t, ix.EnsureSchema(ctx))
	require.NoError(t, ix.IndexBatch(ctx, records))

	return &ToolDeps{
		Executor:   executor.New(db, nil, logger),
		Aggregator: aggregate.New(db, logger),
		Logger:     logger,
	}
}

func TestSearchCatalog(t *testing.T) {
	deps := newToolDeps(t)

	cs, err := SearchCatalog(context.Background(), deps,
		`{"version": "1.0", "filters": [{"field": "place", "op": "EQ", "value": "paris"}]}`, "paris imprints")
	require.NoError(t, err)

	assert.Equal(t, 1, cs.TotalCount)
	require.Len(t, cs.Candidates, 1)
	assert.Equal(t, "990001", cs.Candidates[0].RecordID)
	assert.NotEmpty(t, cs.Candidates[0].Evidence)
	assert.Equal(t, "paris imprints", cs.QueryText)
}

func TestSearchCatalogRejectsBadPlan(t *testing.T) {
	deps := newToolDeps(t)

	_, err := SearchCatalog(context.Background(), deps, `{not json`, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse plan")

	_, err = SearchCatalog(context.Background(), deps,
		`{"version": "1.0", "filters": [{"field": "shelfmark", "op": "EQ", "value": "x"}]}`, "")
	require.Error(t, err)
}

func TestAggregateRecords(t *testing.T) {
	deps := newToolDeps(t)

	result, err := AggregateRecords(context.Background(), deps,
		"top_publishers", `["990001", "990002"]`)
	require.NoError(t, err)

	assert.Equal(t, models.AggTopPublishers, result.Intent)
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Bins, 2)
}

func TestAggregateRecordsRejectsBadInput(t *testing.T) {
	deps := newToolDeps(t)

	_, err := AggregateRecords(context.Background(), deps, "top_publishers", `not json`)
	require.Error(t, err)

	_, err = AggregateRecords(context.Background(), deps, "word_frequencies", `["990001"]`)
	require.Error(t, err)
}

func TestEnrichEntityValidatesType(t *testing.T) {
	deps := newToolDeps(t)

	_, err := EnrichEntity(context.Background(), deps, "spaceship", "Kepler", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity_type")
}

func TestServerRegistersTools(t *testing.T) {
	deps := newToolDeps(t)
	s := NewServer("test", deps)
	assert.NotNil(t, s.MCP())
}
