// Package indexer loads enriched records into the relational index.
package indexer

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/schema"
)

// Indexer writes enriched canonical records into the index database. Each
// batch runs in a single transaction; re-ingestion replaces by mms_id.
type Indexer struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates an Indexer over an open read-write index database.
func New(db *sql.DB, logger *zap.Logger) *Indexer {
	return &Indexer{db: db, logger: logger.Named("indexer")}
}

// EnsureSchema applies the DDL and verifies the schema contract against the
// result. Safe to call on an existing index.
func (ix *Indexer) EnsureSchema(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, schema.DDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := schema.Verify(ix.db); err != nil {
		return err
	}
	return nil
}

// IndexBatch writes all records in one transaction. A record without an M2
// layer is rejected: the index never holds un-normalized rows.
func (ix *Indexer) IndexBatch(ctx context.Context, records []*models.CanonicalRecord) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := ix.indexRecord(ctx, tx, rec); err != nil {
			return fmt.Errorf("record %s: %w", rec.MMSID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	ix.logger.Info("Indexed batch", zap.Int("records", len(records)))
	return nil
}

func (ix *Indexer) indexRecord(ctx context.Context, tx *sql.Tx, rec *models.CanonicalRecord) error {
	if rec.M2 == nil {
		return fmt.Errorf("missing m2 normalization layer")
	}
	if len(rec.M2.ImprintsNorm) != len(rec.Imprints) {
		return fmt.Errorf("imprints_norm length %d does not match imprints length %d",
			len(rec.M2.ImprintsNorm), len(rec.Imprints))
	}

	// Replace-by-mms_id: child rows cascade.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", schema.TableRecords, schema.ColMMSID),
		rec.MMSID); err != nil {
		return fmt.Errorf("delete previous: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)",
			schema.TableRecords, schema.ColMMSID, schema.ColSourceFile, schema.ColJSONLLineNumber, schema.ColSchemaVersion),
		rec.MMSID, rec.SourceFile, rec.JSONLLineNumber, schema.Version)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	recordID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("record id: %w", err)
	}

	if rec.Title != nil {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)",
				schema.TableTitles, schema.ColRecordID, schema.ColOccurrence, schema.ColTitle, schema.ColTitlePath),
			recordID, 0, rec.Title.Value, rec.Title.SourcePath); err != nil {
			return fmt.Errorf("insert title: %w", err)
		}
	}

	for i, imp := range rec.Imprints {
		norm := rec.M2.ImprintsNorm[i]
		args := []any{recordID, i}
		args = append(args, sourcedArgs(imp.Place)...)
		args = append(args, normTextArgs(norm.PlaceNorm)...)
		args = append(args, sourcedArgs(imp.Publisher)...)
		args = append(args, normTextArgs(norm.PublisherNorm)...)
		args = append(args, sourcedArgs(imp.Date)...)
		args = append(args, normDateArgs(norm.DateNorm)...)

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (%s, %s,
				%s, %s, %s, %s, %s,
				%s, %s, %s, %s, %s,
				%s, %s, %s, %s, %s, %s)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			schema.TableImprints, schema.ColRecordID, schema.ColOccurrence,
			schema.ColPlaceRaw, schema.ColPlacePath, schema.ColPlaceNorm, schema.ColPlaceConfidence, schema.ColPlaceMethod,
			schema.ColPublisherRaw, schema.ColPublisherPath, schema.ColPublisherNorm, schema.ColPublisherConfidence, schema.ColPublisherMethod,
			schema.ColDateRaw, schema.ColDatePath, schema.ColDateStart, schema.ColDateEnd, schema.ColDateConfidence, schema.ColDateMethod,
		), args...); err != nil {
			return fmt.Errorf("insert imprint %d: %w", i, err)
		}
	}

	for i, subj := range rec.Subjects {
		var norm any
		if i < len(rec.M2.SubjectsNorm) && rec.M2.SubjectsNorm[i].Value != nil {
			norm = *rec.M2.SubjectsNorm[i].Value
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?)",
				schema.TableSubjects, schema.ColRecordID, schema.ColOccurrence, schema.ColSubject, schema.ColSubjectPath, schema.ColSubjectNorm),
			recordID, i, subj.Value, subj.SourcePath, norm); err != nil {
			return fmt.Errorf("insert subject %d: %w", i, err)
		}
	}

	for i, agent := range rec.Agents {
		if agent.Name == nil {
			continue
		}
		var norm any
		if i < len(rec.M2.AgentsNorm) && rec.M2.AgentsNorm[i].Value != nil {
			norm = *rec.M2.AgentsNorm[i].Value
		}
		var authority any
		if agent.AuthorityID != nil {
			authority = agent.AuthorityID.Value
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?, ?, ?)",
				schema.TableAgents, schema.ColRecordID, schema.ColOccurrence, schema.ColAgent, schema.ColAgentPath, schema.ColAgentRole, schema.ColAgentNorm, schema.ColAuthorityID),
			recordID, i, agent.Name.Value, agent.Name.SourcePath, agent.Role, norm, authority); err != nil {
			return fmt.Errorf("insert agent %d: %w", i, err)
		}
	}

	for i, lang := range rec.Languages {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)",
				schema.TableLanguages, schema.ColRecordID, schema.ColOccurrence, schema.ColLanguage, schema.ColLanguagePath),
			recordID, i, lang.Value, lang.SourcePath); err != nil {
			return fmt.Errorf("insert language %d: %w", i, err)
		}
	}

	for i, note := range rec.Notes {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)",
				schema.TableNotes, schema.ColRecordID, schema.ColOccurrence, schema.ColNote, schema.ColNotePath),
			recordID, i, note.Value, note.SourcePath); err != nil {
			return fmt.Errorf("insert note %d: %w", i, err)
		}
	}

	return nil
}

func sourcedArgs(sv *models.SourcedValue) []any {
	if sv == nil {
		return []any{nil, nil}
	}
	return []any{sv.Value, sv.SourcePath}
}

func normTextArgs(nt *models.NormalizedText) []any {
	if nt == nil {
		return []any{nil, nil, nil}
	}
	var value any
	if nt.Value != nil {
		value = *nt.Value
	}
	return []any{value, nt.Confidence, nt.Method}
}

func normDateArgs(nd *models.NormalizedDate) []any {
	if nd == nil {
		return []any{nil, nil, nil, nil}
	}
	var start, end any
	if nd.Start != nil {
		start = *nd.Start
	}
	if nd.End != nil {
		end = *nd.End
	}
	return []any{start, end, nd.Confidence, nd.Method}
}
