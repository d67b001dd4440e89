package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incipit-labs/folio-engine/pkg/models"
)

func TestNormalizeDateRules(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		start, end int
		method     string
		confidence float64
		warnings   int
	}{
		{"exact year", "1680", 1680, 1680, models.MethodYearExact, 0.99, 0},
		{"bracketed year", "[1680]", 1680, 1680, models.MethodYearBracketed, 0.95, 0},
		{"circa with dot", "c. 1680", 1675, 1685, models.MethodYearCircaPM5, 0.80, 0},
		{"circa without dot", "c1680", 1675, 1685, models.MethodYearCircaPM5, 0.80, 0},
		{"range dash", "1500-1599", 1500, 1599, models.MethodYearRange, 0.90, 0},
		{"range slash", "1500/1599", 1500, 1599, models.MethodYearRange, 0.90, 0},
		{"range single year", "1550-1550", 1550, 1550, models.MethodYearRange, 0.90, 0},
		{"embedded year", "printed anno 1688 in London", 1688, 1688, models.MethodYearEmbedded, 0.85, 1},
		// Inverted range falls to the embedded rule and keeps the first year.
		{"inverted range", "1599-1500", 1599, 1599, models.MethodYearEmbedded, 0.85, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NormalizeDate(tt.raw, "260[0]$c")
			require.NotNil(t, d.Start, "start should be set")
			require.NotNil(t, d.End, "end should be set")
			assert.Equal(t, tt.start, *d.Start)
			assert.Equal(t, tt.end, *d.End)
			assert.Equal(t, tt.method, d.Method)
			assert.InDelta(t, tt.confidence, d.Confidence, 1e-9)
			assert.Len(t, d.Warnings, tt.warnings)
			assert.Equal(t, []string{"260[0]$c"}, d.EvidencePaths)
		})
	}
}

func TestNormalizeDateUnparsed(t *testing.T) {
	d := NormalizeDate("sine anno", "260[0]$c")
	assert.Nil(t, d.Start)
	assert.Nil(t, d.End)
	assert.Equal(t, models.MethodUnparsed, d.Method)
	assert.Zero(t, d.Confidence)
	assert.Len(t, d.Warnings, 1)
}

func TestNormalizeDateMissing(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		d := NormalizeDate(raw, "")
		assert.Nil(t, d.Start)
		assert.Nil(t, d.End)
		assert.Equal(t, models.MethodMissing, d.Method)
		assert.Zero(t, d.Confidence)
	}
}

func TestNormalizeDateInvariantStartLEEnd(t *testing.T) {
	for _, raw := range []string{"1680", "[1444]", "c.1501", "1500-1599", "anno 1712", "1599/1500"} {
		d := NormalizeDate(raw, "")
		if d.Start != nil && d.End != nil {
			assert.LessOrEqual(t, *d.Start, *d.End, "raw=%q", raw)
		}
	}
}
