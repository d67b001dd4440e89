package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/incipit-labs/folio-engine/pkg/models"
)

// Rule confidences are heuristic weights, not calibrated probabilities.
// Only their ordering is meaningful.
const (
	ConfidenceYearExact     = 0.99
	ConfidenceYearBracketed = 0.95
	ConfidenceYearRange     = 0.90
	ConfidenceYearEmbedded  = 0.85
	ConfidenceYearCirca     = 0.80
)

// circaSpread is the +/- window applied to "c. 1680" style dates.
const circaSpread = 5

var (
	reYearExact     = regexp.MustCompile(`^\d{4}$`)
	reYearBracketed = regexp.MustCompile(`^\[(\d{4})\]$`)
	reYearCirca     = regexp.MustCompile(`^c\.?\s*(\d{4})$`)
	reYearRange     = regexp.MustCompile(`^(\d{4})[-/](\d{4})$`)
	reYearEmbedded  = regexp.MustCompile(`(\d{4})`)
)

// NormalizeDate parses a raw imprint date into a year span. Rules apply top
// to bottom, first match wins; malformed input never errors, it lands on
// the unparsed method with zero confidence.
func NormalizeDate(raw string, sourcePath string) *models.NormalizedDate {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &models.NormalizedDate{
			Label:  raw,
			Method: models.MethodMissing,
		}
	}

	d := &models.NormalizedDate{Label: trimmed}
	if sourcePath != "" {
		d.EvidencePaths = []string{sourcePath}
	}

	if reYearExact.MatchString(trimmed) {
		y := mustAtoi(trimmed)
		d.Start, d.End = &y, intPtr(y)
		d.Method = models.MethodYearExact
		d.Confidence = ConfidenceYearExact
		return d
	}

	if m := reYearBracketed.FindStringSubmatch(trimmed); m != nil {
		y := mustAtoi(m[1])
		d.Start, d.End = &y, intPtr(y)
		d.Method = models.MethodYearBracketed
		d.Confidence = ConfidenceYearBracketed
		return d
	}

	if m := reYearCirca.FindStringSubmatch(trimmed); m != nil {
		y := mustAtoi(m[1])
		s, e := y-circaSpread, y+circaSpread
		d.Start, d.End = &s, &e
		d.Method = models.MethodYearCircaPM5
		d.Confidence = ConfidenceYearCirca
		return d
	}

	if m := reYearRange.FindStringSubmatch(trimmed); m != nil {
		s, e := mustAtoi(m[1]), mustAtoi(m[2])
		// Inverted ranges fall through to the embedded-year rule.
		if s <= e {
			d.Start, d.End = &s, &e
			d.Method = models.MethodYearRange
			d.Confidence = ConfidenceYearRange
			return d
		}
	}

	if m := reYearEmbedded.FindStringSubmatch(trimmed); m != nil {
		y := mustAtoi(m[1])
		d.Start, d.End = &y, intPtr(y)
		d.Method = models.MethodYearEmbedded
		d.Confidence = ConfidenceYearEmbedded
		d.Warnings = append(d.Warnings, fmt.Sprintf("year %d extracted from unstructured date %q", y, trimmed))
		return d
	}

	d.Method = models.MethodUnparsed
	d.Warnings = append(d.Warnings, fmt.Sprintf("could not parse date %q", trimmed))
	return d
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func intPtr(v int) *int {
	y := v
	return &y
}
