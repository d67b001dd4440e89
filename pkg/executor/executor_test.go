package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/indexer"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
)

func fixtureRecord(mmsID, title, place, date string) *models.CanonicalRecord {
	rec := &models.CanonicalRecord{
		MMSID: mmsID,
		Title: &models.SourcedValue{Value: title, SourcePath: "245[0]$a"},
		Imprints: []models.Imprint{
			{
				Place:     &models.SourcedValue{Value: place, SourcePath: "260[0]$a"},
				Publisher: &models.SourcedValue{Value: "apud Ioannem Moretum", SourcePath: "260[0]$b"},
				Date:      &models.SourcedValue{Value: date, SourcePath: "260[0]$c"},
			},
		},
		Languages: []models.SourcedValue{{Value: "lat", SourcePath: "008/35-37"}},
	}
	(&normalize.Normalizer{}).EnrichRecord(rec)
	return rec
}

func newTestExecutor(t *testing.T, records ...*models.CanonicalRecord) *Executor {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ix := indexer.New(db, zap.NewNop())
	require.NoError(t, ix.EnsureSchema(context.Background()))
	require.NoError(t, ix.IndexBatch(context.Background(), records))

	return New(db, nil, zap.NewNop())
}

func TestExecutePlaceAndDateRange(t *testing.T) {
	e := newTestExecutor(t,
		fixtureRecord("990001", "Astronomia nova", "Paris :", "1550"),
		fixtureRecord("990002", "Herbarum vivae eicones", "Lugduni", "1550"),
		fixtureRecord("990003", "De revolutionibus", "Paris :", "1680"),
	)

	plan := &models.QueryPlan{
		Version: models.QueryPlanVersion,
		Filters: []models.Filter{
			{Field: models.FieldPlace, Op: models.OpEQ, Value: "paris"},
			{Field: models.FieldDate, Op: models.OpRange, Range: &models.FilterRange{Start: 1500, End: 1599}},
		},
	}

	cs, err := e.Execute(context.Background(), "books printed in Paris between 1500 and 1599", plan)
	require.NoError(t, err)

	require.Len(t, cs.Candidates, 1)
	c := cs.Candidates[0]
	assert.Equal(t, "990001", c.RecordID)
	assert.Equal(t, "Astronomia nova", c.Title)
	assert.Equal(t, "place=paris AND date BETWEEN 1500 AND 1599", c.MatchRationale)
	assert.Equal(t, 1, cs.TotalCount)
	assert.False(t, cs.Truncated)

	byColumn := map[string]models.Evidence{}
	for _, ev := range c.Evidence {
		byColumn[ev.DBColumn] = ev
	}

	place, ok := byColumn["imprints.place_raw"]
	require.True(t, ok)
	assert.Equal(t, "Paris :", place.Value)
	assert.Equal(t, "260[0]$a", place.FieldPath)
	require.NotNil(t, place.NormalizedValue)
	assert.Equal(t, "paris", *place.NormalizedValue)
	require.NotNil(t, place.Confidence)
	assert.InDelta(t, 0.80, *place.Confidence, 0.001)

	date, ok := byColumn["imprints.date_raw"]
	require.True(t, ok)
	assert.Equal(t, "1550", date.Value)
	assert.Equal(t, "260[0]$c", date.FieldPath)
	require.NotNil(t, date.NormalizedValue)
	assert.Equal(t, "1550", *date.NormalizedValue)
}

func TestExecuteContainsPhrase(t *testing.T) {
	e := newTestExecutor(t,
		fixtureRecord("990001", "Astronomia nova aitiologetos", "Praga", "1609"),
		fixtureRecord("990002", "Nova astronomiae pars", "Praga", "1610"),
	)

	plan := &models.QueryPlan{
		Version: models.QueryPlanVersion,
		Filters: []models.Filter{
			{Field: models.FieldTitle, Op: models.OpContains, Value: "astronomia nova"},
		},
	}

	cs, err := e.Execute(context.Background(), "", plan)
	require.NoError(t, err)
	require.Len(t, cs.Candidates, 1)
	assert.Equal(t, "990001", cs.Candidates[0].RecordID)
}

func TestExecuteTruncationAndOrdering(t *testing.T) {
	e := newTestExecutor(t,
		fixtureRecord("990003", "C", "Paris :", "1650"),
		fixtureRecord("990001", "A", "Paris :", "1650"),
		fixtureRecord("990002", "B", "Paris :", "1650"),
	)

	plan := &models.QueryPlan{
		Version: models.QueryPlanVersion,
		Limit:   2,
		Filters: []models.Filter{{Field: models.FieldPlace, Op: models.OpEQ, Value: "paris"}},
	}

	cs, err := e.Execute(context.Background(), "", plan)
	require.NoError(t, err)
	require.Len(t, cs.Candidates, 2)
	assert.Equal(t, "990001", cs.Candidates[0].RecordID)
	assert.Equal(t, "990002", cs.Candidates[1].RecordID)
	assert.Equal(t, 3, cs.TotalCount)
	assert.True(t, cs.Truncated)
}

func TestExecuteDeduplicatesEvidence(t *testing.T) {
	rec := fixtureRecord("990001", "Atlas maior", "Amstelodami", "1662")
	rec.Imprints = append(rec.Imprints, models.Imprint{
		Place: &models.SourcedValue{Value: "Amstelodami", SourcePath: "264[0]$a"},
		Date:  &models.SourcedValue{Value: "1662", SourcePath: "264[0]$c"},
	})
	(&normalize.Normalizer{}).EnrichRecord(rec)
	e := newTestExecutor(t, rec)

	plan := &models.QueryPlan{
		Version: models.QueryPlanVersion,
		Filters: []models.Filter{{Field: models.FieldPlace, Op: models.OpEQ, Value: "amstelodami"}},
	}

	cs, err := e.Execute(context.Background(), "", plan)
	require.NoError(t, err)
	require.Len(t, cs.Candidates, 1)

	placeCount := 0
	for _, ev := range cs.Candidates[0].Evidence {
		if ev.DBColumn == "imprints.place_raw" && ev.Value == "Amstelodami" {
			placeCount++
		}
	}
	assert.Equal(t, 1, placeCount)
}

func TestExecutePersistsRunLocation(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ix := indexer.New(db, zap.NewNop())
	require.NoError(t, ix.EnsureSchema(context.Background()))
	require.NoError(t, ix.IndexBatch(context.Background(),
		[]*models.CanonicalRecord{fixtureRecord("990001", "A", "Paris :", "1650")}))

	runs := t.TempDir()
	e := New(db, NewRunStore(runs), zap.NewNop())

	plan := &models.QueryPlan{
		Version: models.QueryPlanVersion,
		Filters: []models.Filter{{Field: models.FieldPlace, Op: models.OpEQ, Value: "paris"}},
	}

	cs, err := e.Execute(context.Background(), "", plan)
	require.NoError(t, err)
	require.NotEmpty(t, cs.RunDir)
	assert.True(t, strings.HasPrefix(cs.RunDir, runs))

	_, err = os.Stat(filepath.Join(cs.RunDir, "candidate_set.json"))
	assert.NoError(t, err)
}

func TestExecuteRejectsInjectionInParameter(t *testing.T) {
	e := newTestExecutor(t, fixtureRecord("990001", "A", "Paris :", "1650"))

	plan := &models.QueryPlan{
		Version: models.QueryPlanVersion,
		Filters: []models.Filter{{Field: models.FieldNote, Op: models.OpEQ, Value: "' OR 1=1 --"}},
	}

	_, err := e.Execute(context.Background(), "", plan)
	assert.Error(t, err)
}
