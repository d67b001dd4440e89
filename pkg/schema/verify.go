package schema

import (
	"database/sql"
	"fmt"
)

// tableColumns lists every column constant per table. Verify introspects
// the live database against this list; a mismatch is fatal at startup so a
// drifted schema can never reach request handlers.
var tableColumns = map[string][]string{
	TableRecords:   {ColRecordID, ColMMSID, ColSourceFile, ColJSONLLineNumber, ColSchemaVersion},
	TableTitles:    {ColID, ColRecordID, ColOccurrence, ColTitle, ColTitlePath},
	TableImprints:  {ColID, ColRecordID, ColOccurrence, ColPlaceRaw, ColPlacePath, ColPlaceNorm, ColPlaceConfidence, ColPlaceMethod, ColPublisherRaw, ColPublisherPath, ColPublisherNorm, ColPublisherConfidence, ColPublisherMethod, ColDateRaw, ColDatePath, ColDateStart, ColDateEnd, ColDateConfidence, ColDateMethod},
	TableSubjects:  {ColID, ColRecordID, ColOccurrence, ColSubject, ColSubjectPath, ColSubjectNorm},
	TableAgents:    {ColID, ColRecordID, ColOccurrence, ColAgent, ColAgentPath, ColAgentRole, ColAgentNorm, ColAuthorityID},
	TableLanguages: {ColID, ColRecordID, ColOccurrence, ColLanguage, ColLanguagePath},
	TableNotes:     {ColID, ColRecordID, ColOccurrence, ColNote, ColNotePath},
}

// Verify asserts that every table and column constant resolves against the
// live database, and that both FTS virtual tables exist.
func Verify(db *sql.DB) error {
	for table, columns := range tableColumns {
		live, err := liveColumns(db, table)
		if err != nil {
			return err
		}
		if len(live) == 0 {
			return fmt.Errorf("schema contract: table %q missing from database", table)
		}
		for _, col := range columns {
			if !live[col] {
				return fmt.Errorf("schema contract: column %s.%s missing from database", table, col)
			}
		}
	}

	for _, fts := range []string{TableTitlesFTS, TableSubjectsFTS} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, fts).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("schema contract: full-text table %q missing from database", fts)
		}
		if err != nil {
			return fmt.Errorf("schema contract: introspect %q: %w", fts, err)
		}
	}

	return nil
}

func liveColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("schema contract: introspect %q: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("schema contract: scan table_info for %q: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
