package schema

// DDL creates the full index schema, including the FTS virtual tables and
// their sync triggers. It is idempotent so rebuilds can run over a fresh
// file without special-casing.
const DDL = `
CREATE TABLE IF NOT EXISTS records (
	record_id         INTEGER PRIMARY KEY,
	mms_id            TEXT NOT NULL UNIQUE,
	source_file       TEXT NOT NULL DEFAULT '',
	jsonl_line_number INTEGER NOT NULL DEFAULT 0,
	schema_version    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS titles (
	id         INTEGER PRIMARY KEY,
	record_id  INTEGER NOT NULL REFERENCES records(record_id) ON DELETE CASCADE,
	occurrence INTEGER NOT NULL,
	title      TEXT NOT NULL,
	title_path TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS imprints (
	id                   INTEGER PRIMARY KEY,
	record_id            INTEGER NOT NULL REFERENCES records(record_id) ON DELETE CASCADE,
	occurrence           INTEGER NOT NULL,
	place_raw            TEXT,
	place_path           TEXT,
	place_norm           TEXT,
	place_confidence     REAL,
	place_method         TEXT,
	publisher_raw        TEXT,
	publisher_path       TEXT,
	publisher_norm       TEXT,
	publisher_confidence REAL,
	publisher_method     TEXT,
	date_raw             TEXT,
	date_path            TEXT,
	date_start           INTEGER,
	date_end             INTEGER,
	date_confidence      REAL,
	date_method          TEXT
);

CREATE TABLE IF NOT EXISTS subjects (
	id           INTEGER PRIMARY KEY,
	record_id    INTEGER NOT NULL REFERENCES records(record_id) ON DELETE CASCADE,
	occurrence   INTEGER NOT NULL,
	subject      TEXT NOT NULL,
	subject_path TEXT NOT NULL DEFAULT '',
	subject_norm TEXT
);

CREATE TABLE IF NOT EXISTS agents (
	id           INTEGER PRIMARY KEY,
	record_id    INTEGER NOT NULL REFERENCES records(record_id) ON DELETE CASCADE,
	occurrence   INTEGER NOT NULL,
	agent        TEXT NOT NULL,
	agent_path   TEXT NOT NULL DEFAULT '',
	agent_role   TEXT,
	agent_norm   TEXT,
	authority_id TEXT
);

CREATE TABLE IF NOT EXISTS languages (
	id            INTEGER PRIMARY KEY,
	record_id     INTEGER NOT NULL REFERENCES records(record_id) ON DELETE CASCADE,
	occurrence    INTEGER NOT NULL,
	language      TEXT NOT NULL,
	language_path TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS notes (
	id         INTEGER PRIMARY KEY,
	record_id  INTEGER NOT NULL REFERENCES records(record_id) ON DELETE CASCADE,
	occurrence INTEGER NOT NULL,
	note       TEXT NOT NULL,
	note_path  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_imprints_date ON imprints(date_start, date_end);
CREATE INDEX IF NOT EXISTS idx_imprints_place ON imprints(place_norm);
CREATE INDEX IF NOT EXISTS idx_imprints_publisher ON imprints(publisher_norm);
CREATE INDEX IF NOT EXISTS idx_agents_norm ON agents(agent_norm);
CREATE INDEX IF NOT EXISTS idx_subjects_norm ON subjects(subject_norm);
CREATE INDEX IF NOT EXISTS idx_languages_language ON languages(language);

CREATE VIRTUAL TABLE IF NOT EXISTS titles_fts USING fts5(
	title,
	content='titles',
	content_rowid='id'
);

CREATE VIRTUAL TABLE IF NOT EXISTS subjects_fts USING fts5(
	subject,
	content='subjects',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS titles_fts_insert AFTER INSERT ON titles BEGIN
	INSERT INTO titles_fts(rowid, title) VALUES (new.id, new.title);
END;

CREATE TRIGGER IF NOT EXISTS titles_fts_delete AFTER DELETE ON titles BEGIN
	INSERT INTO titles_fts(titles_fts, rowid, title) VALUES ('delete', old.id, old.title);
END;

CREATE TRIGGER IF NOT EXISTS subjects_fts_insert AFTER INSERT ON subjects BEGIN
	INSERT INTO subjects_fts(rowid, subject) VALUES (new.id, new.subject);
END;

CREATE TRIGGER IF NOT EXISTS subjects_fts_delete AFTER DELETE ON subjects BEGIN
	INSERT INTO subjects_fts(subjects_fts, rowid, subject) VALUES ('delete', old.id, old.subject);
END;
`
