// Package schema is the single source of truth for the bibliographic index:
// every table and column name, the DDL, and the mapping from query-plan
// filter fields to columns, joins and MARC provenance. The planner and
// executor reference only the constants defined here.
package schema

import (
	"fmt"

	"github.com/incipit-labs/folio-engine/pkg/models"
)

// Version is the index schema version stored on every record row.
// MINOR bumps are additive; MAJOR bumps require a rebuild from JSONL.
const Version = "1.0"

// Table names.
const (
	TableRecords   = "records"
	TableTitles    = "titles"
	TableImprints  = "imprints"
	TableSubjects  = "subjects"
	TableAgents    = "agents"
	TableLanguages = "languages"
	TableNotes     = "notes"

	TableTitlesFTS   = "titles_fts"
	TableSubjectsFTS = "subjects_fts"
)

// records columns.
const (
	ColRecordID        = "record_id"
	ColMMSID           = "mms_id"
	ColSourceFile      = "source_file"
	ColJSONLLineNumber = "jsonl_line_number"
	ColSchemaVersion   = "schema_version"
)

// Shared child-table columns.
const (
	ColID         = "id"
	ColOccurrence = "occurrence"
)

// titles columns.
const (
	ColTitle     = "title"
	ColTitlePath = "title_path"
)

// imprints columns.
const (
	ColPlaceRaw            = "place_raw"
	ColPlacePath           = "place_path"
	ColPlaceNorm           = "place_norm"
	ColPlaceConfidence     = "place_confidence"
	ColPlaceMethod         = "place_method"
	ColPublisherRaw        = "publisher_raw"
	ColPublisherPath       = "publisher_path"
	ColPublisherNorm       = "publisher_norm"
	ColPublisherConfidence = "publisher_confidence"
	ColPublisherMethod     = "publisher_method"
	ColDateRaw             = "date_raw"
	ColDatePath            = "date_path"
	ColDateStart           = "date_start"
	ColDateEnd             = "date_end"
	ColDateConfidence      = "date_confidence"
	ColDateMethod          = "date_method"
)

// subjects columns.
const (
	ColSubject     = "subject"
	ColSubjectPath = "subject_path"
	ColSubjectNorm = "subject_norm"
)

// agents columns.
const (
	ColAgent       = "agent"
	ColAgentPath   = "agent_path"
	ColAgentRole   = "agent_role"
	ColAgentNorm   = "agent_norm"
	ColAuthorityID = "authority_id"
)

// languages columns.
const (
	ColLanguage     = "language"
	ColLanguagePath = "language_path"
)

// notes columns.
const (
	ColNote     = "note"
	ColNotePath = "note_path"
)

// FieldSpec binds one query-plan filter field to the index schema. Alias is
// the table alias used in compiled SQL; Join is the join clause from the
// records table. MARCPath documents where evidence values originate; the
// authoritative per-row path is stored in PathColumn at index time.
type FieldSpec struct {
	Field      models.FilterField `yaml:"field"`
	Table      string             `yaml:"table"`
	Alias      string             `yaml:"alias"`
	Join       string             `yaml:"join"`
	Column     string             `yaml:"column"`
	FullText   bool               `yaml:"full_text"`
	FTSTable   string             `yaml:"fts_table,omitempty"`
	MARCPath   string             `yaml:"marc_path"`
	RawColumn  string             `yaml:"raw_column"`
	NormColumn string             `yaml:"norm_column,omitempty"`
	ConfColumn string             `yaml:"confidence_column,omitempty"`
	PathColumn string             `yaml:"path_column"`
}

// Qualified returns alias.column for use in SQL text.
func (s *FieldSpec) Qualified(column string) string {
	return s.Alias + "." + column
}

// Contract is the full filter-field mapping, keyed by field name.
var Contract = map[models.FilterField]FieldSpec{
	models.FieldTitle: {
		Field:      models.FieldTitle,
		Table:      TableTitles,
		Alias:      "t",
		Join:       fmt.Sprintf("JOIN %s t ON t.%s = r.%s", TableTitles, ColRecordID, ColRecordID),
		Column:     ColTitle,
		FullText:   true,
		FTSTable:   TableTitlesFTS,
		MARCPath:   "245$a",
		RawColumn:  ColTitle,
		PathColumn: ColTitlePath,
	},
	models.FieldSubject: {
		Field:      models.FieldSubject,
		Table:      TableSubjects,
		Alias:      "s",
		Join:       fmt.Sprintf("JOIN %s s ON s.%s = r.%s", TableSubjects, ColRecordID, ColRecordID),
		Column:     ColSubjectNorm,
		FullText:   true,
		FTSTable:   TableSubjectsFTS,
		MARCPath:   "650$a",
		RawColumn:  ColSubject,
		NormColumn: ColSubjectNorm,
		PathColumn: ColSubjectPath,
	},
	models.FieldPlace: {
		Field:      models.FieldPlace,
		Table:      TableImprints,
		Alias:      "imp",
		Join:       fmt.Sprintf("JOIN %s imp ON imp.%s = r.%s", TableImprints, ColRecordID, ColRecordID),
		Column:     ColPlaceNorm,
		MARCPath:   "260$a|264$a",
		RawColumn:  ColPlaceRaw,
		NormColumn: ColPlaceNorm,
		ConfColumn: ColPlaceConfidence,
		PathColumn: ColPlacePath,
	},
	models.FieldPublisher: {
		Field:      models.FieldPublisher,
		Table:      TableImprints,
		Alias:      "imp",
		Join:       fmt.Sprintf("JOIN %s imp ON imp.%s = r.%s", TableImprints, ColRecordID, ColRecordID),
		Column:     ColPublisherNorm,
		MARCPath:   "260$b|264$b",
		RawColumn:  ColPublisherRaw,
		NormColumn: ColPublisherNorm,
		ConfColumn: ColPublisherConfidence,
		PathColumn: ColPublisherPath,
	},
	models.FieldAgent: {
		Field:      models.FieldAgent,
		Table:      TableAgents,
		Alias:      "a",
		Join:       fmt.Sprintf("JOIN %s a ON a.%s = r.%s", TableAgents, ColRecordID, ColRecordID),
		Column:     ColAgentNorm,
		MARCPath:   "100$a|700$a",
		RawColumn:  ColAgent,
		NormColumn: ColAgentNorm,
		PathColumn: ColAgentPath,
	},
	models.FieldLanguage: {
		Field:      models.FieldLanguage,
		Table:      TableLanguages,
		Alias:      "l",
		Join:       fmt.Sprintf("JOIN %s l ON l.%s = r.%s", TableLanguages, ColRecordID, ColRecordID),
		Column:     ColLanguage,
		MARCPath:   "041$a|008/35-37",
		RawColumn:  ColLanguage,
		PathColumn: ColLanguagePath,
	},
	models.FieldDate: {
		Field:      models.FieldDate,
		Table:      TableImprints,
		Alias:      "imp",
		Join:       fmt.Sprintf("JOIN %s imp ON imp.%s = r.%s", TableImprints, ColRecordID, ColRecordID),
		Column:     ColDateStart,
		MARCPath:   "260$c|264$c",
		RawColumn:  ColDateRaw,
		NormColumn: ColDateStart,
		ConfColumn: ColDateConfidence,
		PathColumn: ColDatePath,
	},
	models.FieldNote: {
		Field:      models.FieldNote,
		Table:      TableNotes,
		Alias:      "n",
		Join:       fmt.Sprintf("JOIN %s n ON n.%s = r.%s", TableNotes, ColRecordID, ColRecordID),
		Column:     ColNote,
		MARCPath:   "500$a",
		RawColumn:  ColNote,
		PathColumn: ColNotePath,
	},
}

// Lookup returns the contract entry for a filter field.
func Lookup(field models.FilterField) (FieldSpec, bool) {
	spec, ok := Contract[field]
	return spec, ok
}
