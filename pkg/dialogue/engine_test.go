package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/aggregate"
	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/enrich"
	"github.com/incipit-labs/folio-engine/pkg/executor"
	"github.com/incipit-labs/folio-engine/pkg/indexer"
	"github.com/incipit-labs/folio-engine/pkg/llm"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
	"github.com/incipit-labs/folio-engine/pkg/planner"
	"github.com/incipit-labs/folio-engine/pkg/retry"
	"github.com/incipit-labs/folio-engine/pkg/sessions"
)

func catalogRecord(mmsID, title, place, publisher, date, lang, agent string) *models.CanonicalRecord {
	rec := &models.CanonicalRecord{
		MMSID: mmsID,
		Title: &models.SourcedValue{Value: title, SourcePath: "245[0]$a"},
		Imprints: []models.Imprint{
			{
				Place:     &models.SourcedValue{Value: place, SourcePath: "260[0]$a"},
				Publisher: &models.SourcedValue{Value: publisher, SourcePath: "260[0]$b"},
				Date:      &models.SourcedValue{Value: date, SourcePath: "260[0]$c"},
			},
		},
		Agents:    []models.Agent{{Name: &models.SourcedValue{Value: agent, SourcePath: "100[0]$a"}}},
		Subjects:  []models.SourcedValue{{Value: "Astronomy", SourcePath: "650[0]$a"}},
		Languages: []models.SourcedValue{{Value: lang, SourcePath: "008/35-37"}},
	}
	(&normalize.Normalizer{}).EnrichRecord(rec)
	return rec
}

type testEngine struct {
	engine *Engine
	mock   *llm.MockClient
	store  *sessions.Store
	plans  *planner.PlanCache
}

func newTestEngine(t *testing.T, enricher *enrich.Enricher) *testEngine {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	logger := zap.NewNop()

	indexDB, err := database.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { indexDB.Close() })

	ix := indexer.New(indexDB, logger)
	require.NoError(t, ix.EnsureSchema(ctx))
	require.NoError(t, ix.IndexBatch(ctx, []*models.CanonicalRecord{
		catalogRecord("990001", "Astronomia nova", "Paris :", "Cramoisy", "[1680]", "lat", "Kepler, Johannes"),
		catalogRecord("990002", "Traité du ciel", "Paris :", "Cramoisy", "1685", "fre", "Mersenne, Marin"),
		catalogRecord("990003", "De revolutionibus", "Venetiis", "Giunta", "1543", "lat", "Copernicus, Nicolaus"),
	}))

	sessionsDB, err := database.Open(filepath.Join(dir, "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sessionsDB.Close() })
	store, err := sessions.NewStore(sessionsDB, logger)
	require.NoError(t, err)

	plans, err := planner.OpenPlanCache(filepath.Join(dir, "plans.jsonl"), logger)
	require.NoError(t, err)

	mock := llm.NewMockClient()
	engine := New(Deps{
		LLM:        mock,
		Breaker:    llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig()),
		Plans:      plans,
		Executor:   executor.New(indexDB, nil, logger),
		Aggregator: aggregate.New(indexDB, logger),
		Enricher:   enricher,
		Sessions:   store,
		IndexDB:    indexDB,
		Retry:      &retry.Config{MaxRetries: 0, InitialDelay: time.Millisecond},
		Logger:     logger,
	})

	return &testEngine{engine: engine, mock: mock, store: store, plans: plans}
}

func interpretation(confidence float64, filtersJSON string) string {
	return fmt.Sprintf(
		`{"overall_confidence": %.2f, "query_plan": {"version": "1.0", "filters": [%s]}, "uncertainties": [], "goal": "survey early astronomy printing"}`,
		confidence, filtersJSON)
}

func classification(intent, aggIntent, entityName, entityType string) string {
	payload := map[string]any{
		"intent":             intent,
		"aggregation_intent": aggIntent,
		"entity_name":        entityName,
		"entity_type":        entityType,
		"record_reference":   nil,
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

// scriptMock routes completions by the prompt's heading so one mock can
// serve interpretation, classification and refinement calls in a turn.
func scriptMock(te *testEngine, interpret, classify, refine string) {
	te.mock.CompleteFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		switch {
		case strings.Contains(prompt, "# Exploration Intent Classification"):
			return classify, nil
		case strings.Contains(prompt, "# Query Refinement"):
			return refine, nil
		default:
			return interpret, nil
		}
	}
}

const parisFilters = `{"field": "place", "op": "EQ", "value": "paris"}, {"field": "date", "op": "RANGE", "range": {"start": 1600, "end": 1699}}`

func startExploration(t *testing.T, te *testEngine) string {
	t.Helper()
	scriptMock(te, interpretation(0.95, parisFilters), "", "")

	resp, err := te.engine.Turn(context.Background(), TurnRequest{Message: "books printed in Paris in the 17th century"})
	require.NoError(t, err)
	require.Equal(t, models.PhaseCorpusExploration, resp.Phase)
	require.NotNil(t, resp.CandidateSet)
	require.Equal(t, 2, resp.CandidateSet.TotalCount)
	return resp.SessionID
}

func TestDefineTurnExecutesPlan(t *testing.T) {
	te := newTestEngine(t, nil)
	scriptMock(te, interpretation(0.95, parisFilters), "", "")

	var events []Event
	resp, err := te.engine.Turn(context.Background(), TurnRequest{
		Message: "books printed in Paris in the 17th century",
		Notify:  func(ev Event) { events = append(events, ev) },
	})
	require.NoError(t, err)

	assert.Equal(t, models.PhaseCorpusExploration, resp.Phase)
	require.NotNil(t, resp.CandidateSet)
	assert.Equal(t, 2, resp.CandidateSet.TotalCount)
	assert.Contains(t, resp.Message, "2 matching records")
	assert.NotEmpty(t, resp.SuggestedFollowups)

	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, EventCandidates)
	assert.Contains(t, types, EventPhaseChange)

	sess, err := te.store.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCorpusExploration, sess.Phase)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, models.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, sess.Messages[1].Role)
	require.NotNil(t, sess.ActiveSubgroup)
	assert.Equal(t, 2, sess.ActiveSubgroup.CandidateSet.TotalCount)
	assert.NotEmpty(t, sess.UserGoals)
}

func TestDefineTurnClarifiesBelowGate(t *testing.T) {
	te := newTestEngine(t, nil)
	te.mock.CompleteFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return `{"overall_confidence": 0.4, "query_plan": {"version": "1.0", "filters": []}, "uncertainties": ["Which century do you mean?"], "goal": ""}`, nil
	}

	resp, err := te.engine.Turn(context.Background(), TurnRequest{Message: "old books"})
	require.NoError(t, err)

	assert.True(t, resp.ClarificationNeeded)
	assert.Contains(t, resp.Message, "Which century")
	assert.Equal(t, models.PhaseQueryDefinition, resp.Phase)
	require.NotNil(t, resp.Confidence)
	assert.InDelta(t, 0.4, *resp.Confidence, 0.001)

	// Below-gate interpretations are never cached.
	assert.Equal(t, 0, te.plans.Len())
}

func TestPlanCacheHitSkipsModel(t *testing.T) {
	te := newTestEngine(t, nil)
	scriptMock(te, interpretation(0.95, parisFilters), "", "")

	_, err := te.engine.Turn(context.Background(), TurnRequest{Message: "paris imprints of the 17th century"})
	require.NoError(t, err)
	require.Equal(t, 1, te.mock.CompleteCalls)

	// Same question in a fresh session reuses the cached plan.
	resp, err := te.engine.Turn(context.Background(), TurnRequest{Message: "Paris  imprints of the 17th century"})
	require.NoError(t, err)
	assert.Equal(t, 1, te.mock.CompleteCalls)
	assert.Equal(t, 2, resp.CandidateSet.TotalCount)
}

func TestRefinementNarrowsSet(t *testing.T) {
	te := newTestEngine(t, nil)
	sessionID := startExploration(t, te)

	scriptMock(te,
		"",
		classification("REFINEMENT", "", "", ""),
		interpretation(0.9, `{"field": "language", "op": "EQ", "value": "french"}`))

	resp, err := te.engine.Turn(context.Background(), TurnRequest{SessionID: sessionID, Message: "only the ones in French"})
	require.NoError(t, err)

	require.NotNil(t, resp.CandidateSet)
	assert.Equal(t, 1, resp.CandidateSet.TotalCount)
	require.Len(t, resp.CandidateSet.Candidates, 1)
	assert.Equal(t, "990002", resp.CandidateSet.Candidates[0].RecordID)

	// Language names are mapped to MARC codes before compilation.
	var languageValue string
	for _, f := range resp.CandidateSet.QueryPlan.Filters {
		if f.Field == models.FieldLanguage {
			languageValue = f.Value
		}
	}
	assert.Equal(t, "fre", languageValue)

	sess, err := te.store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.ActiveSubgroup.CandidateSet.TotalCount)
}

func TestRefinementIsIdempotent(t *testing.T) {
	te := newTestEngine(t, nil)
	sessionID := startExploration(t, te)

	scriptMock(te,
		"",
		classification("REFINEMENT", "", "", ""),
		interpretation(0.9, `{"field": "language", "op": "EQ", "value": "fre"}`))

	first, err := te.engine.Turn(context.Background(), TurnRequest{SessionID: sessionID, Message: "only the French ones"})
	require.NoError(t, err)
	second, err := te.engine.Turn(context.Background(), TurnRequest{SessionID: sessionID, Message: "only the French ones please"})
	require.NoError(t, err)

	assert.Equal(t, first.CandidateSet.TotalCount, second.CandidateSet.TotalCount)
	assert.Len(t, second.CandidateSet.QueryPlan.Filters, len(first.CandidateSet.QueryPlan.Filters))
}

func TestAggregationTurn(t *testing.T) {
	te := newTestEngine(t, nil)
	sessionID := startExploration(t, te)

	scriptMock(te, "", classification("AGGREGATION", "top_publishers", "", ""), "")

	var events []Event
	resp, err := te.engine.Turn(context.Background(), TurnRequest{
		SessionID: sessionID,
		Message:   "who are the main publishers?",
		Notify:    func(ev Event) { events = append(events, ev) },
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Aggregation)
	assert.Equal(t, models.AggTopPublishers, resp.Aggregation.Intent)
	require.NotEmpty(t, resp.Aggregation.Bins)
	assert.Equal(t, "cramoisy", resp.Aggregation.Bins[0].Key)
	assert.Equal(t, 2, resp.Aggregation.Bins[0].Count)
	assert.Contains(t, resp.Message, "cramoisy")

	var sawAggregation bool
	for _, ev := range events {
		if ev.Type == EventAggregationResult {
			sawAggregation = true
		}
	}
	assert.True(t, sawAggregation)
}

func TestMetadataTurnAnswersFromIndex(t *testing.T) {
	te := newTestEngine(t, nil)
	sessionID := startExploration(t, te)

	scriptMock(te, "", classification("METADATA_QUESTION", "", "", ""), "")
	calls := te.mock.CompleteCalls

	resp, err := te.engine.Turn(context.Background(), TurnRequest{SessionID: sessionID, Message: "how many are there and from when?"})
	require.NoError(t, err)

	assert.Contains(t, resp.Message, "2 records")
	assert.Contains(t, resp.Message, "1680 to 1685")
	// One call for classification; the answer itself comes from the index.
	assert.Equal(t, calls+1, te.mock.CompleteCalls)
}

func TestNewQueryResetsSubgroup(t *testing.T) {
	te := newTestEngine(t, nil)
	sessionID := startExploration(t, te)

	scriptMock(te,
		interpretation(0.95, `{"field": "place", "op": "EQ", "value": "venetiis"}`),
		classification("NEW_QUERY", "", "", ""),
		"")

	resp, err := te.engine.Turn(context.Background(), TurnRequest{SessionID: sessionID, Message: "now show me Venetian imprints"})
	require.NoError(t, err)

	assert.Equal(t, models.PhaseCorpusExploration, resp.Phase)
	require.NotNil(t, resp.CandidateSet)
	assert.Equal(t, 1, resp.CandidateSet.TotalCount)
	assert.Equal(t, "990003", resp.CandidateSet.Candidates[0].RecordID)

	sess, err := te.store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "now show me Venetian imprints", sess.ActiveSubgroup.DefiningQuery)
}

func TestNLUnavailableLeavesSessionUntouched(t *testing.T) {
	te := newTestEngine(t, nil)
	sess, err := te.store.Create(context.Background())
	require.NoError(t, err)

	te.mock.CompleteFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "", fmt.Errorf("dial tcp: connection refused")
	}

	_, err = te.engine.Turn(context.Background(), TurnRequest{SessionID: sess.ID, Message: "books about alchemy"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNLUnavailable)

	reloaded, err := te.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Messages)
	assert.Equal(t, models.PhaseQueryDefinition, reloaded.Phase)
}

func TestUnknownSession(t *testing.T) {
	te := newTestEngine(t, nil)

	_, err := te.engine.Turn(context.Background(), TurnRequest{SessionID: "no-such-session", Message: "hello"})
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestEmptyMessageRejected(t *testing.T) {
	te := newTestEngine(t, nil)

	_, err := te.engine.Turn(context.Background(), TurnRequest{Message: "   "})
	assert.Error(t, err)
}

func TestEnrichmentTurnReportsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "api.php") {
			fmt.Fprint(w, `{"search": []}`)
			return
		}
		fmt.Fprint(w, `{"results": {"bindings": []}}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	logger := zap.NewNop()
	enrichDB, err := database.Open(filepath.Join(dir, "enrichment.db"))
	require.NoError(t, err)
	defer enrichDB.Close()
	cache, err := enrich.NewCache(enrichDB, logger)
	require.NoError(t, err)
	wikidata := enrich.NewWikidataClient(enrich.ClientConfig{
		BaseURL:            srv.URL,
		SPARQLEndpoint:     srv.URL + "/sparql",
		MinRequestInterval: time.Nanosecond,
	}, logger)
	enricher := enrich.NewEnricher(cache, wikidata, time.Hour, logger)

	te := newTestEngine(t, enricher)
	sessionID := startExploration(t, te)

	scriptMock(te, "", classification("ENRICHMENT_REQUEST", "", "Cramoisy", "publisher"), "")

	resp, err := te.engine.Turn(context.Background(), TurnRequest{SessionID: sessionID, Message: "who was Cramoisy?"})
	require.NoError(t, err)

	require.NotNil(t, resp.Enrichment)
	assert.Equal(t, models.SourceNone, resp.Enrichment.Source)
	assert.Contains(t, resp.Message, "could not find")

	sess, err := te.store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	last := sess.Messages[len(sess.Messages)-1]
	require.NotNil(t, last.Enrichment)
	assert.Equal(t, models.SourceNone, last.Enrichment.Source)
}

func TestRecommendationTurn(t *testing.T) {
	te := newTestEngine(t, nil)
	sessionID := startExploration(t, te)

	scriptMock(te, "", classification("RECOMMENDATION", "", "", ""), "")

	resp, err := te.engine.Turn(context.Background(), TurnRequest{SessionID: sessionID, Message: "which should I look at first?"})
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "match your criteria")
	assert.Contains(t, resp.Message, "990001")
}

func TestMergeFiltersDropsDuplicates(t *testing.T) {
	existing := []models.Filter{
		{Field: models.FieldPlace, Op: models.OpEQ, Value: "paris"},
	}
	incoming := []models.Filter{
		{Field: models.FieldPlace, Op: models.OpEQ, Value: "paris"},
		{Field: models.FieldLanguage, Op: models.OpEQ, Value: "fre"},
	}

	merged := mergeFilters(existing, incoming)
	require.Len(t, merged, 2)
	assert.Equal(t, models.FieldLanguage, merged[1].Field)
}
