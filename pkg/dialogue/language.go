package dialogue

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/incipit-labs/folio-engine/pkg/models"
)

// marcExceptions maps ISO 639-2/T terminology codes to the bibliographic
// codes MARC records use where the two diverge.
var marcExceptions = map[string]string{
	"deu": "ger",
	"fra": "fre",
	"zho": "chi",
	"ces": "cze",
	"nld": "dut",
	"ell": "gre",
	"hye": "arm",
	"eus": "baq",
	"fas": "per",
	"isl": "ice",
	"kat": "geo",
	"mkd": "mac",
	"msa": "may",
	"mya": "bur",
	"ron": "rum",
	"slk": "slo",
	"sqi": "alb",
	"cym": "wel",
	"bod": "tib",
}

// languageNames resolves the language names researchers actually type.
// x/text handles codes; full English names need their own table.
var languageNames = map[string]string{
	"latin":         "lat",
	"french":        "fre",
	"german":        "ger",
	"english":       "eng",
	"italian":       "ita",
	"spanish":       "spa",
	"dutch":         "dut",
	"flemish":       "dut",
	"greek":         "gre",
	"ancient greek": "grc",
	"hebrew":        "heb",
	"arabic":        "ara",
	"aramaic":       "arc",
	"portuguese":    "por",
	"yiddish":       "yid",
	"polish":        "pol",
	"russian":       "rus",
	"czech":         "cze",
	"hungarian":     "hun",
	"danish":        "dan",
	"swedish":       "swe",
	"ladino":        "lad",
	"judeo-arabic":  "jrb",
	"persian":       "per",
	"turkish":       "tur",
	"syriac":        "syc",
}

// MARCLanguageCode maps a language name or code onto the MARC ISO 639-2/B
// code the index stores. Unknown names pass through lowercased so the
// resulting filter still compiles; it simply matches nothing.
func MARCLanguageCode(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if code, ok := languageNames[key]; ok {
		return code
	}

	if tag, err := language.Parse(key); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			iso3 := base.ISO3()
			if marc, ok := marcExceptions[iso3]; ok {
				return marc
			}
			if iso3 != "" {
				return iso3
			}
		}
	}
	return key
}

// mapLanguageFilters rewrites language filter values in place to MARC
// codes before the plan reaches validation and compilation.
func mapLanguageFilters(plan *models.QueryPlan) {
	if plan == nil {
		return
	}
	for i, f := range plan.Filters {
		if f.Field != models.FieldLanguage {
			continue
		}
		if f.Value != "" {
			plan.Filters[i].Value = MARCLanguageCode(f.Value)
		}
		for j, v := range f.Values {
			plan.Filters[i].Values[j] = MARCLanguageCode(v)
		}
	}
}
