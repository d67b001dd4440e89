package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/aggregate"
	"github.com/incipit-labs/folio-engine/pkg/enrich"
	"github.com/incipit-labs/folio-engine/pkg/executor"
	"github.com/incipit-labs/folio-engine/pkg/models"
)

// ToolDeps contains the engine pieces the catalog tools run on. Tools are
// fully deterministic: callers supply structured plans, never free text.
type ToolDeps struct {
	Executor   *executor.Executor
	Aggregator *aggregate.Aggregator
	Enricher   *enrich.Enricher
	Logger     *zap.Logger
}

// RegisterCatalogTools registers the search, aggregation and enrichment
// tools.
func RegisterCatalogTools(s *server.MCPServer, deps *ToolDeps) {
	registerSearchCatalog(s, deps)
	registerAggregateRecords(s, deps)
	if deps.Enricher != nil {
		registerEnrichEntity(s, deps)
	}
}

func registerSearchCatalog(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"search_catalog",
		mcp.WithDescription(
			"Execute a structured query plan against the bibliographic index and "+
				"return matching records with per-record evidence. The plan is JSON: "+
				`{"version": "1.0", "filters": [{"field": "place", "op": "EQ", "value": "paris"}]}. `+
				"Fields: title, subject, place, publisher, agent, language, date, note. "+
				"Operators: EQ, IN, RANGE (date only), CONTAINS (title and subject only).",
		),
		mcp.WithString(
			"plan",
			mcp.Required(),
			mcp.Description("Query plan JSON document"),
		),
		mcp.WithString(
			"query_text",
			mcp.Description("Optional human-readable statement of the query, recorded with the result"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		planJSON, err := req.RequireString("plan")
		if err != nil {
			return nil, err
		}
		queryText := req.GetString("query_text", "")

		result, err := SearchCatalog(ctx, deps, planJSON, queryText)
		if err != nil {
			deps.Logger.Warn("search_catalog failed", zap.Error(err))
			return mcp.NewToolResultError(err.Error()), nil
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// SearchCatalog parses and executes a plan. Exposed for tests.
func SearchCatalog(ctx context.Context, deps *ToolDeps, planJSON, queryText string) (*models.CandidateSet, error) {
	var plan models.QueryPlan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if queryText == "" {
		queryText = "mcp:search_catalog"
	}
	return deps.Executor.Execute(ctx, queryText, &plan)
}

func registerAggregateRecords(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"aggregate_records",
		mcp.WithDescription(
			"Summarize a set of record ids with a fixed aggregation template. "+
				"Intents: top_publishers, date_distribution, language_breakdown, "+
				"place_distribution, subject_clusters, agent_breakdown, count_only.",
		),
		mcp.WithString(
			"intent",
			mcp.Required(),
			mcp.Description("Aggregation intent name"),
		),
		mcp.WithString(
			"record_ids",
			mcp.Required(),
			mcp.Description("JSON array of record ids, e.g. [\"990001\", \"990002\"]"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		intent, err := req.RequireString("intent")
		if err != nil {
			return nil, err
		}
		idsJSON, err := req.RequireString("record_ids")
		if err != nil {
			return nil, err
		}

		result, err := AggregateRecords(ctx, deps, intent, idsJSON)
		if err != nil {
			deps.Logger.Warn("aggregate_records failed", zap.Error(err))
			return mcp.NewToolResultError(err.Error()), nil
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// AggregateRecords parses the id list and runs the template. Exposed for
// tests.
func AggregateRecords(ctx context.Context, deps *ToolDeps, intent, idsJSON string) (*models.AggregationResult, error) {
	var ids []string
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return nil, fmt.Errorf("parse record_ids: %w", err)
	}
	return deps.Aggregator.Aggregate(ctx, models.AggregationIntent(intent), ids)
}

func registerEnrichEntity(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"enrich_entity",
		mcp.WithDescription(
			"Look up external authority information (Wikidata) for a person, "+
				"place or publisher appearing in the catalog. Results are cached; "+
				"a miss is reported honestly rather than guessed at.",
		),
		mcp.WithString(
			"entity_type",
			mcp.Required(),
			mcp.Description("One of: person, place, publisher"),
		),
		mcp.WithString(
			"name",
			mcp.Required(),
			mcp.Description("Entity name as it appears in the records"),
		),
		mcp.WithString(
			"authority_id",
			mcp.Description("Optional MARC $0 authority identifier for exact resolution"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entityType, err := req.RequireString("entity_type")
		if err != nil {
			return nil, err
		}
		name, err := req.RequireString("name")
		if err != nil {
			return nil, err
		}
		authorityID := req.GetString("authority_id", "")

		result, err := EnrichEntity(ctx, deps, entityType, name, authorityID)
		if err != nil {
			deps.Logger.Warn("enrich_entity failed", zap.Error(err))
			return mcp.NewToolResultError(err.Error()), nil
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// EnrichEntity validates the entity type and runs the enrichment chain.
// Exposed for tests.
func EnrichEntity(ctx context.Context, deps *ToolDeps, entityType, name, authorityID string) (*models.EnrichmentResult, error) {
	etype := models.EntityType(strings.ToLower(strings.TrimSpace(entityType)))
	switch etype {
	case models.EntityPerson, models.EntityPlace, models.EntityPublisher:
	default:
		return nil, fmt.Errorf("unknown entity_type %q", entityType)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	return deps.Enricher.Enrich(ctx, etype, name, authorityID)
}
