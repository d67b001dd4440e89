package aggregate

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/indexer"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
)

func fixtureRecord(mmsID, publisher, place, date, language string) *models.CanonicalRecord {
	rec := &models.CanonicalRecord{
		MMSID: mmsID,
		Title: &models.SourcedValue{Value: "Title " + mmsID, SourcePath: "245[0]$a"},
		Imprints: []models.Imprint{
			{
				Place:     &models.SourcedValue{Value: place, SourcePath: "260[0]$a"},
				Publisher: &models.SourcedValue{Value: publisher, SourcePath: "260[0]$b"},
				Date:      &models.SourcedValue{Value: date, SourcePath: "260[0]$c"},
			},
		},
		Languages: []models.SourcedValue{{Value: language, SourcePath: "008/35-37"}},
	}
	(&normalize.Normalizer{}).EnrichRecord(rec)
	return rec
}

func newTestAggregator(t *testing.T, records ...*models.CanonicalRecord) *Aggregator {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ix := indexer.New(db, zap.NewNop())
	require.NoError(t, ix.EnsureSchema(context.Background()))
	require.NoError(t, ix.IndexBatch(context.Background(), records))

	return New(db, zap.NewNop())
}

func TestTopPublishersSortedByCountThenKey(t *testing.T) {
	agg := newTestAggregator(t,
		fixtureRecord("990001", "Plantin", "Antverpiae", "1590", "lat"),
		fixtureRecord("990002", "Plantin", "Antverpiae", "1592", "lat"),
		fixtureRecord("990003", "Elzevir", "Lugduni Batavorum", "1640", "lat"),
		fixtureRecord("990004", "Aldus", "Venetiis", "1501", "lat"),
	)

	res, err := agg.Aggregate(context.Background(), models.AggTopPublishers,
		[]string{"990001", "990002", "990003", "990004"})
	require.NoError(t, err)

	require.Len(t, res.Bins, 3)
	assert.Equal(t, "plantin", res.Bins[0].Key)
	assert.Equal(t, 2, res.Bins[0].Count)
	// Tied counts fall back to key ascending.
	assert.Equal(t, "aldus", res.Bins[1].Key)
	assert.Equal(t, "elzevir", res.Bins[2].Key)
	assert.Equal(t, 4, res.Total)
}

func TestAggregateRestrictsToSubset(t *testing.T) {
	agg := newTestAggregator(t,
		fixtureRecord("990001", "Plantin", "Antverpiae", "1590", "lat"),
		fixtureRecord("990002", "Elzevir", "Lugduni Batavorum", "1640", "lat"),
	)

	res, err := agg.Aggregate(context.Background(), models.AggTopPublishers, []string{"990001"})
	require.NoError(t, err)
	require.Len(t, res.Bins, 1)
	assert.Equal(t, "plantin", res.Bins[0].Key)
	assert.Equal(t, 1, res.Total)
}

func TestDateDistributionByDecade(t *testing.T) {
	agg := newTestAggregator(t,
		fixtureRecord("990001", "P", "Paris :", "1655", "fre"),
		fixtureRecord("990002", "P", "Paris :", "1659", "fre"),
		fixtureRecord("990003", "P", "Paris :", "1692", "fre"),
	)

	res, err := agg.Aggregate(context.Background(), models.AggDateDistribution,
		[]string{"990001", "990002", "990003"})
	require.NoError(t, err)

	require.Len(t, res.Bins, 2)
	assert.Equal(t, "1650s", res.Bins[0].Key)
	assert.Equal(t, 2, res.Bins[0].Count)
	assert.Equal(t, "1690s", res.Bins[1].Key)
}

func TestLanguageBreakdown(t *testing.T) {
	agg := newTestAggregator(t,
		fixtureRecord("990001", "P", "Paris :", "1655", "lat"),
		fixtureRecord("990002", "P", "Paris :", "1659", "fre"),
		fixtureRecord("990003", "P", "Paris :", "1692", "lat"),
	)

	res, err := agg.Aggregate(context.Background(), models.AggLanguageBreakdown,
		[]string{"990001", "990002", "990003"})
	require.NoError(t, err)
	require.Len(t, res.Bins, 2)
	assert.Equal(t, "lat", res.Bins[0].Key)
	assert.Equal(t, 2, res.Bins[0].Count)
	assert.LessOrEqual(t, len(res.Bins[0].SampleIDs), 3)
}

func TestCountOnly(t *testing.T) {
	agg := newTestAggregator(t,
		fixtureRecord("990001", "P", "Paris :", "1655", "lat"),
		fixtureRecord("990002", "P", "Paris :", "1659", "lat"),
	)

	res, err := agg.Aggregate(context.Background(), models.AggCountOnly, []string{"990001", "990002"})
	require.NoError(t, err)
	assert.Empty(t, res.Bins)
	assert.Equal(t, 2, res.Total)
}

func TestEmptySubsetYieldsZeroBins(t *testing.T) {
	agg := newTestAggregator(t, fixtureRecord("990001", "P", "Paris :", "1655", "lat"))

	res, err := agg.Aggregate(context.Background(), models.AggPlaceDistribution, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Bins)
	assert.Equal(t, 0, res.Total)
}

func TestUnknownIntentRejected(t *testing.T) {
	agg := newTestAggregator(t, fixtureRecord("990001", "P", "Paris :", "1655", "lat"))

	_, err := agg.Aggregate(context.Background(), "publisher_histogram", []string{"990001"})
	assert.Error(t, err)
}

func TestLargeIDSetUsesTempTable(t *testing.T) {
	records := make([]*models.CanonicalRecord, 0, 25)
	ids := make([]string, 0, ChunkThreshold+50)
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("99%04d", i)
		records = append(records, fixtureRecord(id, "Plantin", "Antverpiae", "1590", "lat"))
		ids = append(ids, id)
	}
	// Pad with ids absent from the index to push past the inline threshold.
	for i := 0; i < ChunkThreshold+25; i++ {
		ids = append(ids, fmt.Sprintf("88%06d", i))
	}
	agg := newTestAggregator(t, records...)

	res, err := agg.Aggregate(context.Background(), models.AggTopPublishers, ids)
	require.NoError(t, err)
	require.Len(t, res.Bins, 1)
	assert.Equal(t, 25, res.Bins[0].Count)
	assert.Equal(t, 25, res.Total)
}
