// Package marc parses MARC XML into canonical records. The walker is
// deliberately linear: one pass over the document, occurrence counters per
// tag, every extracted value tagged with its field[occurrence]$subfield path.
package marc

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/incipit-labs/folio-engine/pkg/models"
)

// MARC tags consulted by the walker.
const (
	tagControlID   = "001"
	tagFixedData   = "008"
	tagLanguage    = "041"
	tagMainPerson  = "100"
	tagMainCorp    = "110"
	tagTitle       = "245"
	tagImprint     = "260"
	tagProduction  = "264"
	tagNote        = "500"
	tagSubjPerson  = "600"
	tagSubjTopical = "650"
	tagSubjGeo     = "651"
	tagAddPerson   = "700"
	tagAddCorp     = "710"
)

type xmlSubfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

type xmlDatafield struct {
	Tag       string        `xml:"tag,attr"`
	Subfields []xmlSubfield `xml:"subfield"`
}

type xmlControlfield struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:",chardata"`
}

type xmlRecord struct {
	Leader        string            `xml:"leader"`
	Controlfields []xmlControlfield `xml:"controlfield"`
	Datafields    []xmlDatafield    `xml:"datafield"`
}

// ParseFile decodes a MARC XML stream into canonical records. sourceFile is
// recorded on each output record for provenance.
func ParseFile(r io.Reader, sourceFile string) ([]*models.CanonicalRecord, error) {
	decoder := xml.NewDecoder(r)
	var records []*models.CanonicalRecord

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode MARC XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "record" {
			continue
		}

		var raw xmlRecord
		if err := decoder.DecodeElement(&raw, &start); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}

		rec, err := buildRecord(&raw, sourceFile)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func buildRecord(raw *xmlRecord, sourceFile string) (*models.CanonicalRecord, error) {
	rec := &models.CanonicalRecord{
		SourceFile: sourceFile,
		Imprints:   []models.Imprint{},
		Agents:     []models.Agent{},
		Subjects:   []models.SourcedValue{},
		Languages:  []models.SourcedValue{},
		Notes:      []models.SourcedValue{},
	}

	var fixedData string
	for _, cf := range raw.Controlfields {
		switch cf.Tag {
		case tagControlID:
			rec.MMSID = strings.TrimSpace(cf.Value)
		case tagFixedData:
			fixedData = cf.Value
		}
	}
	if rec.MMSID == "" {
		return nil, fmt.Errorf("missing control field %s (record identifier)", tagControlID)
	}

	// Occurrence counters are per tag, zero-based, in document order.
	occ := make(map[string]int)

	for _, df := range raw.Datafields {
		i := occ[df.Tag]
		occ[df.Tag]++

		switch df.Tag {
		case tagTitle:
			if v := subfield(df, "a"); v != "" && rec.Title == nil {
				rec.Title = sourced(v, df.Tag, i, "a")
			}
		case tagImprint, tagProduction:
			imp := models.Imprint{}
			if v := subfield(df, "a"); v != "" {
				imp.Place = sourced(v, df.Tag, i, "a")
			}
			if v := subfield(df, "b"); v != "" {
				imp.Publisher = sourced(v, df.Tag, i, "b")
			}
			if v := subfield(df, "c"); v != "" {
				imp.Date = sourced(v, df.Tag, i, "c")
			}
			if imp.Place != nil || imp.Publisher != nil || imp.Date != nil {
				rec.Imprints = append(rec.Imprints, imp)
			}
		case tagMainPerson, tagMainCorp, tagAddPerson, tagAddCorp:
			if v := subfield(df, "a"); v != "" {
				agent := models.Agent{
					Name: sourced(v, df.Tag, i, "a"),
					Role: subfield(df, "e"),
				}
				if id := subfield(df, "0"); id != "" {
					agent.AuthorityID = sourced(id, df.Tag, i, "0")
				}
				rec.Agents = append(rec.Agents, agent)
			}
		case tagSubjPerson, tagSubjTopical, tagSubjGeo:
			if v := joinSubjectSubfields(df); v != "" {
				rec.Subjects = append(rec.Subjects, *sourced(v, df.Tag, i, "a"))
			}
		case tagNote:
			if v := subfield(df, "a"); v != "" {
				rec.Notes = append(rec.Notes, *sourced(v, df.Tag, i, "a"))
			}
		case tagLanguage:
			for _, sf := range df.Subfields {
				if sf.Code == "a" && strings.TrimSpace(sf.Value) != "" {
					rec.Languages = append(rec.Languages, *sourced(strings.TrimSpace(sf.Value), df.Tag, i, "a"))
				}
			}
		}
	}

	// 008 positions 35-37 hold the primary language code; used only when no
	// 041 field is present so occurrence order stays faithful to the source.
	if len(rec.Languages) == 0 && len(fixedData) >= 38 {
		code := strings.TrimSpace(fixedData[35:38])
		if code != "" && code != "|||" {
			rec.Languages = append(rec.Languages, models.SourcedValue{
				Value:      code,
				SourcePath: "008/35-37",
			})
		}
	}

	return rec, nil
}

func subfield(df xmlDatafield, code string) string {
	for _, sf := range df.Subfields {
		if sf.Code == code {
			return strings.TrimSpace(sf.Value)
		}
	}
	return ""
}

// joinSubjectSubfields concatenates $a with $x/$y/$z subdivisions using the
// conventional " -- " separator.
func joinSubjectSubfields(df xmlDatafield) string {
	var parts []string
	for _, sf := range df.Subfields {
		switch sf.Code {
		case "a", "x", "y", "z":
			if v := strings.TrimSpace(sf.Value); v != "" {
				parts = append(parts, v)
			}
		}
	}
	return strings.Join(parts, " -- ")
}

func sourced(value, tag string, occurrence int, code string) *models.SourcedValue {
	return &models.SourcedValue{
		Value:      value,
		SourcePath: fmt.Sprintf("%s[%d]$%s", tag, occurrence, code),
	}
}
