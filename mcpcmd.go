package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/incipit-labs/folio-engine/pkg/aggregate"
	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/config"
	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/enrich"
	"github.com/incipit-labs/folio-engine/pkg/executor"
	"github.com/incipit-labs/folio-engine/pkg/logging"
	"github.com/incipit-labs/folio-engine/pkg/mcp"
	"github.com/incipit-labs/folio-engine/pkg/schema"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the catalog tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(Version)
			if err != nil {
				return err
			}
			// Logs must stay off stdout: that stream carries the protocol.
			logger, err := logging.New("production")
			if err != nil {
				return err
			}
			defer logger.Sync()

			indexDB, err := database.OpenReadOnly(cfg.BibliographicDBPath)
			if err != nil {
				return fmt.Errorf("%w: open index %s: %s", apperrors.ErrDependencyNotReady, cfg.BibliographicDBPath, err.Error())
			}
			defer indexDB.Close()
			if err := schema.Verify(indexDB); err != nil {
				return fmt.Errorf("%w: %s", apperrors.ErrDependencyNotReady, err.Error())
			}

			deps := &mcp.ToolDeps{
				Executor:   executor.New(indexDB, nil, logger),
				Aggregator: aggregate.New(indexDB, logger),
				Logger:     logger,
			}

			enrichDB, err := database.Open(cfg.EnrichmentDBPath)
			if err == nil {
				defer enrichDB.Close()
				if cache, cerr := enrich.NewCache(enrichDB, logger); cerr == nil {
					wikidata := enrich.NewWikidataClient(enrich.ClientConfig{
						BaseURL:            cfg.Enrichment.WikidataBaseURL,
						SPARQLEndpoint:     cfg.Enrichment.WikidataSPARQLEndpoint,
						MinRequestInterval: cfg.Enrichment.MinRequestInterval(),
					}, logger)
					deps.Enricher = enrich.NewEnricher(cache, wikidata, cfg.Enrichment.TTL(), logger)
				}
			}

			return mcp.NewServer(cfg.Version, deps).ServeStdio()
		},
	}
}
