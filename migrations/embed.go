// Package migrations embeds the SQL migrations for the session and
// enrichment databases. The bibliographic index is created by the indexer
// from its DDL and is not migrated here.
package migrations

import "embed"

//go:embed sessions/*.sql enrichment/*.sql
var FS embed.FS

// Directory names inside FS, for use with database.Migrate.
const (
	SessionsDir   = "sessions"
	EnrichmentDir = "enrichment"
)
