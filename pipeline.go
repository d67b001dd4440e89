package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/config"
	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/executor"
	"github.com/incipit-labs/folio-engine/pkg/indexer"
	"github.com/incipit-labs/folio-engine/pkg/llm"
	"github.com/incipit-labs/folio-engine/pkg/logging"
	"github.com/incipit-labs/folio-engine/pkg/marc"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
	"github.com/incipit-labs/folio-engine/pkg/planner"
	"github.com/incipit-labs/folio-engine/pkg/prompts"
	"github.com/incipit-labs/folio-engine/pkg/schema"
)

// indexBatchSize is how many records go into one indexing transaction.
const indexBatchSize = 500

func newParseCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "parse <marcxml-file>...",
		Short: "Parse MARC XML exports into canonical JSONL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, closeOut, err := openOutput(out)
			if err != nil {
				return err
			}
			defer closeOut()

			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("%w: %s", apperrors.ErrDependencyNotReady, err.Error())
				}
				records, err := marc.ParseFile(f, path)
				f.Close()
				if err != nil {
					return fmt.Errorf("parse %s: %w", path, err)
				}
				if err := marc.WriteJSONL(w, records); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "parsed %s: %d records\n", path, len(records))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output JSONL file (default stdout)")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	var out, placeAliases, publisherAliases, agentAliases string

	cmd := &cobra.Command{
		Use:   "normalize <canonical-jsonl>",
		Short: "Attach the normalization layer to canonical records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := &normalize.Normalizer{}
			var err error
			if placeAliases != "" {
				if n.PlaceAliases, err = normalize.LoadAliasMap(placeAliases); err != nil {
					return err
				}
			}
			if publisherAliases != "" {
				if n.PublisherAliases, err = normalize.LoadAliasMap(publisherAliases); err != nil {
					return err
				}
			}
			if agentAliases != "" {
				if n.AgentAliases, err = normalize.LoadAliasMap(agentAliases); err != nil {
					return err
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", apperrors.ErrDependencyNotReady, err.Error())
			}
			defer f.Close()
			records, err := marc.ReadJSONL(f)
			if err != nil {
				return err
			}

			for _, rec := range records {
				n.EnrichRecord(rec)
			}

			w, closeOut, err := openOutput(out)
			if err != nil {
				return err
			}
			defer closeOut()
			if err := marc.WriteJSONL(w, records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "normalized %d records\n", len(records))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output JSONL file (default stdout)")
	cmd.Flags().StringVar(&placeAliases, "place-aliases", "", "place alias map JSON")
	cmd.Flags().StringVar(&publisherAliases, "publisher-aliases", "", "publisher alias map JSON")
	cmd.Flags().StringVar(&agentAliases, "agent-aliases", "", "agent alias map JSON")
	return cmd
}

func newIndexCmd() *cobra.Command {
	var dbPath, contractOut string

	cmd := &cobra.Command{
		Use:   "index <enriched-jsonl>",
		Short: "Load normalized records into the bibliographic index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New("local")
			if err != nil {
				return err
			}
			defer logger.Sync()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", apperrors.ErrDependencyNotReady, err.Error())
			}
			defer f.Close()
			records, err := marc.ReadJSONL(f)
			if err != nil {
				return err
			}

			db, err := database.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			ix := indexer.New(db, logger)
			if err := ix.EnsureSchema(ctx); err != nil {
				return err
			}
			for start := 0; start < len(records); start += indexBatchSize {
				end := start + indexBatchSize
				if end > len(records) {
					end = len(records)
				}
				if err := ix.IndexBatch(ctx, records[start:end]); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "indexed %d records into %s\n", len(records), dbPath)

			if contractOut != "" {
				if err := schema.Export(contractOut); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote schema contract to %s\n", contractOut)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "data/bibliographic.db", "index database path")
	cmd.Flags().StringVar(&contractOut, "contract-out", "", "also write the schema contract YAML to this path")
	return cmd
}

func newQueryCmd() *cobra.Command {
	var dbPath, planJSON, planFile, runsDir, planCachePath string

	cmd := &cobra.Command{
		Use:   `query ["<text>"]`,
		Short: "Execute a query against the index",
		Long: "Executes a query plan given with --plan/--plan-file, or free text\n" +
			"resolved through the plan cache and the language model.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New("local")
			if err != nil {
				return err
			}
			defer logger.Sync()

			queryText := "cli query"
			var plan models.QueryPlan
			switch {
			case planJSON != "" || planFile != "":
				raw := []byte(planJSON)
				if planFile != "" {
					raw, err = os.ReadFile(planFile)
					if err != nil {
						return err
					}
				}
				if err := json.Unmarshal(raw, &plan); err != nil {
					return fmt.Errorf("%w: %s", apperrors.ErrPlanInvalid, err.Error())
				}
				if err := planner.Validate(&plan); err != nil {
					return err
				}
			case len(args) == 1:
				queryText = args[0]
				plan, err = compileQueryText(cmd.Context(), queryText, planCachePath, logger)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: pass query text or --plan/--plan-file", apperrors.ErrPlanInvalid)
			}

			db, err := database.OpenReadOnly(dbPath)
			if err != nil {
				return fmt.Errorf("%w: %s", apperrors.ErrDependencyNotReady, err.Error())
			}
			defer db.Close()

			var runs *executor.RunStore
			if runsDir != "" {
				runs = executor.NewRunStore(runsDir)
			}
			cs, err := executor.New(db, runs, logger).Execute(cmd.Context(), queryText, &plan)
			if err != nil {
				return err
			}

			if cs.RunDir != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d candidates\n", len(cs.Candidates), cs.TotalCount)
				fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(cs.RunDir, "candidate_set.json"))
				return nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cs)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "data/bibliographic.db", "index database path")
	cmd.Flags().StringVar(&planJSON, "plan", "", "query plan JSON")
	cmd.Flags().StringVar(&planFile, "plan-file", "", "file holding the query plan JSON")
	cmd.Flags().StringVar(&runsDir, "runs-dir", "runs", "persist run artifacts under this directory (empty prints JSON instead)")
	cmd.Flags().StringVar(&planCachePath, "plan-cache", "data/plan_cache.jsonl", "plan cache file for free-text queries")
	return cmd
}

// compileQueryText resolves free text to a validated plan: cached
// fingerprints are reused as-is, a miss goes through the configured
// language model. Without a credential the miss fails as NLUnavailable.
func compileQueryText(ctx context.Context, queryText, cachePath string, logger *zap.Logger) (models.QueryPlan, error) {
	plans, err := planner.OpenPlanCache(cachePath, logger)
	if err != nil {
		return models.QueryPlan{}, err
	}

	cfg, err := config.Load(Version)
	if err != nil {
		return models.QueryPlan{}, err
	}

	plan, _, err := plans.GetOrCompile(ctx, queryText, func(ctx context.Context) (models.QueryPlan, string, error) {
		client, err := llm.New(&llm.Config{
			Provider: cfg.LLM.Provider,
			Endpoint: cfg.LLM.Endpoint,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey(),
			Timeout:  cfg.LLM.Timeout(),
		}, logger)
		if err != nil {
			return models.QueryPlan{}, "", err
		}

		out, err := client.Complete(ctx, prompts.BuildInterpretPrompt(queryText, nil), prompts.InterpretSystemPrompt, 0)
		if err != nil {
			return models.QueryPlan{}, "", fmt.Errorf("%w: %s", apperrors.ErrNLUnavailable, err.Error())
		}
		wire, err := llm.ParseJSONResponse[struct {
			QueryPlan *models.QueryPlan `json:"query_plan"`
		}](out)
		if err != nil {
			return models.QueryPlan{}, "", fmt.Errorf("%w: unparseable interpretation: %s", apperrors.ErrNLUnavailable, err.Error())
		}
		if wire.QueryPlan == nil {
			return models.QueryPlan{}, "", fmt.Errorf("%w: no plan in interpretation", apperrors.ErrNLUnavailable)
		}
		if err := planner.Validate(wire.QueryPlan); err != nil {
			return models.QueryPlan{}, "", err
		}
		return *wire.QueryPlan, client.Model(), nil
	})
	return plan, err
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, func() { f.Close() }, nil
}
