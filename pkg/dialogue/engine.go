// Package dialogue implements the two-phase conversation engine: query
// definition turns a researcher's language into an executed plan, corpus
// exploration answers follow-up questions about the resulting record set.
// Every factual answer is computed from the index; the language model only
// translates and classifies.
package dialogue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/aggregate"
	"github.com/incipit-labs/folio-engine/pkg/enrich"
	"github.com/incipit-labs/folio-engine/pkg/executor"
	"github.com/incipit-labs/folio-engine/pkg/jsonutil"
	"github.com/incipit-labs/folio-engine/pkg/llm"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/planner"
	"github.com/incipit-labs/folio-engine/pkg/prompts"
	"github.com/incipit-labs/folio-engine/pkg/retry"
	"github.com/incipit-labs/folio-engine/pkg/sessions"
)

// ConfidenceGate is the interpretation confidence below which the engine
// asks for clarification instead of executing.
const ConfidenceGate = 0.85

// candidateTrancheSize is how many candidates go out per streaming event.
const candidateTrancheSize = 10

// Event is a progress notification streamed to connected clients while a
// turn is being processed.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	EventPhaseChange        = "phase_change"
	EventCandidates         = "candidates"
	EventAggregationResult  = "aggregation_result"
	EventEnrichmentProgress = "enrichment_progress"
	EventEnrichmentResult   = "enrichment_result"
)

// TurnRequest is one user message addressed to a session. A zero SessionID
// starts a new session. Notify, when set, receives progress events.
type TurnRequest struct {
	SessionID string
	Message   string
	Notify    func(Event)
}

// TurnResponse is the engine's answer to a turn.
type TurnResponse struct {
	SessionID           string                    `json:"session_id"`
	Phase               models.SessionPhase       `json:"phase"`
	Message             string                    `json:"message"`
	CandidateSet        *models.CandidateSet      `json:"candidate_set,omitempty"`
	Aggregation         *models.AggregationResult `json:"aggregation,omitempty"`
	Enrichment          *models.EnrichmentResult  `json:"enrichment,omitempty"`
	SuggestedFollowups  []string                  `json:"suggested_followups,omitempty"`
	ClarificationNeeded bool                      `json:"clarification_needed,omitempty"`
	Confidence          *float64                  `json:"confidence,omitempty"`
}

// Deps are the engine's collaborators. All are required except Retry, which
// defaults.
type Deps struct {
	LLM        llm.Client
	Breaker    *llm.CircuitBreaker
	Plans      *planner.PlanCache
	Executor   *executor.Executor
	Aggregator *aggregate.Aggregator
	Enricher   *enrich.Enricher
	Sessions   *sessions.Store
	IndexDB    *sql.DB
	Retry      *retry.Config
	Logger     *zap.Logger
}

// Engine drives the dialogue. Turns within a session are serialized by the
// session store's lock; session state is only persisted after a turn fully
// succeeds, so a failed turn leaves the session untouched.
type Engine struct {
	llm      llm.Client
	breaker  *llm.CircuitBreaker
	plans    *planner.PlanCache
	executor *executor.Executor
	agg      *aggregate.Aggregator
	enricher *enrich.Enricher
	store    *sessions.Store
	index    *indexReader
	retryCfg *retry.Config
	logger   *zap.Logger
}

// New creates a dialogue engine.
func New(deps Deps) *Engine {
	retryCfg := deps.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &Engine{
		llm:      deps.LLM,
		breaker:  deps.Breaker,
		plans:    deps.Plans,
		executor: deps.Executor,
		agg:      deps.Aggregator,
		enricher: deps.Enricher,
		store:    deps.Sessions,
		index:    &indexReader{db: deps.IndexDB},
		retryCfg: retryCfg,
		logger:   deps.Logger.Named("dialogue"),
	}
}

// Turn processes one user message. On any error the session is left exactly
// as it was: no partial writes.
func (e *Engine) Turn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("empty message")
	}

	var sess *models.Session
	var err error
	if req.SessionID == "" {
		sess, err = e.store.Create(ctx)
		if err != nil {
			return nil, err
		}
		unlock := e.store.Lock(sess.ID)
		defer unlock()
	} else {
		unlock := e.store.Lock(req.SessionID)
		defer unlock()
		sess, err = e.store.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
	}

	emit := func(ev Event) {
		if req.Notify != nil {
			req.Notify(ev)
		}
	}

	userMsg := models.ChatMessage{
		Role:      models.RoleUser,
		Content:   message,
		Timestamp: time.Now().UTC(),
	}

	var resp *TurnResponse
	var assistant models.ChatMessage
	switch sess.Phase {
	case models.PhaseCorpusExploration:
		resp, assistant, err = e.exploreTurn(ctx, sess, message, emit)
	default:
		resp, assistant, err = e.defineTurn(ctx, sess, message, emit)
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.ApplyTurn(ctx, sess, userMsg, assistant); err != nil {
		return nil, err
	}

	resp.SessionID = sess.ID
	resp.Phase = sess.Phase
	return resp, nil
}

// defineTurn handles the query-definition phase. Plans are fetched from the
// persistent cache; only validated, above-gate interpretations are cached.
func (e *Engine) defineTurn(ctx context.Context, sess *models.Session, message string, emit func(Event)) (*TurnResponse, models.ChatMessage, error) {
	var interp *models.QueryInterpretation

	plan, cached, err := e.plans.GetOrCompile(ctx, message, func(ctx context.Context) (models.QueryPlan, string, error) {
		in, err := e.interpret(ctx, sess, message)
		if err != nil {
			return models.QueryPlan{}, "", err
		}
		interp = in

		if in.OverallConfidence < ConfidenceGate || in.QueryPlan == nil || len(in.QueryPlan.Filters) == 0 {
			return models.QueryPlan{}, "", &clarificationError{interp: in}
		}

		mapLanguageFilters(in.QueryPlan)
		if err := planner.Validate(in.QueryPlan); err != nil {
			return models.QueryPlan{}, "", err
		}
		return *in.QueryPlan, e.llm.Model(), nil
	})
	if err != nil {
		var clar *clarificationError
		if errors.As(err, &clar) {
			return e.clarify(clar.interp)
		}
		return nil, models.ChatMessage{}, err
	}
	if cached {
		e.logger.Debug("Plan cache hit", zap.String("session_id", sess.ID))
	}

	return e.runPlan(ctx, sess, message, &plan, interp, emit)
}

// clarify turns a below-gate interpretation into a question for the
// researcher. The session stays in query definition.
func (e *Engine) clarify(interp *models.QueryInterpretation) (*TurnResponse, models.ChatMessage, error) {
	text := "Could you tell me more about what you are looking for? A subject, a place of printing, a date range or an author all help."
	if len(interp.Uncertainties) > 0 {
		text = prompts.BuildClarificationText(interp.Uncertainties)
	}

	conf := interp.OverallConfidence
	resp := &TurnResponse{
		Message:             text,
		ClarificationNeeded: true,
		Confidence:          &conf,
	}
	assistant := models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	return resp, assistant, nil
}

// runPlan executes a validated plan and installs the result as the active
// subgroup, moving the session into corpus exploration.
func (e *Engine) runPlan(ctx context.Context, sess *models.Session, queryText string, plan *models.QueryPlan, interp *models.QueryInterpretation, emit func(Event)) (*TurnResponse, models.ChatMessage, error) {
	cs, err := e.executor.Execute(ctx, queryText, plan)
	if err != nil {
		return nil, models.ChatMessage{}, err
	}

	for i := 0; i < len(cs.Candidates); i += candidateTrancheSize {
		end := i + candidateTrancheSize
		if end > len(cs.Candidates) {
			end = len(cs.Candidates)
		}
		emit(Event{Type: EventCandidates, Payload: cs.Candidates[i:end]})
	}

	now := time.Now().UTC()
	sess.ActiveSubgroup = &models.ActiveSubgroup{
		CandidateSet:  cs,
		DefiningQuery: queryText,
		FilterSummary: describeFilters(plan),
		CreatedAt:     now,
	}
	if sess.Phase != models.PhaseCorpusExploration {
		sess.Phase = models.PhaseCorpusExploration
		emit(Event{Type: EventPhaseChange, Payload: sess.Phase})
	}
	if interp != nil && interp.Goal != "" {
		sess.UserGoals = append(sess.UserGoals, models.Goal{Text: interp.Goal, CreatedAt: now})
	}

	text := candidateText(cs)
	resp := &TurnResponse{
		Message:            text,
		CandidateSet:       cs,
		SuggestedFollowups: suggestFollowups(cs),
	}
	assistant := models.ChatMessage{
		Role:         models.RoleAssistant,
		Content:      text,
		QueryPlan:    plan,
		CandidateSet: cs,
		Timestamp:    now,
	}
	return resp, assistant, nil
}

// exploreTurn handles the corpus-exploration phase by classifying the
// message and dispatching to the matching deterministic operation.
func (e *Engine) exploreTurn(ctx context.Context, sess *models.Session, message string, emit func(Event)) (*TurnResponse, models.ChatMessage, error) {
	wire, err := e.classify(ctx, sess, message)
	if err != nil {
		return nil, models.ChatMessage{}, err
	}

	intent := models.ExplorationIntent(wire.Intent)
	e.logger.Debug("Classified exploration turn",
		zap.String("session_id", sess.ID),
		zap.String("intent", string(intent)))

	if intent == models.IntentNewQuery {
		sess.ActiveSubgroup = nil
		sess.Phase = models.PhaseQueryDefinition
		emit(Event{Type: EventPhaseChange, Payload: sess.Phase})
		return e.defineTurn(ctx, sess, message, emit)
	}

	if sess.ActiveSubgroup == nil || sess.ActiveSubgroup.CandidateSet == nil {
		return e.say("There is no active result set yet. Describe a search first, for example a subject, a place of printing or a date range.")
	}

	switch intent {
	case models.IntentRefinement:
		return e.refineTurn(ctx, sess, message, emit)
	case models.IntentAggregation:
		return e.aggregateTurn(ctx, sess, wire.AggregationIntent, emit)
	case models.IntentMetadataQuestion:
		return e.metadataTurn(ctx, sess)
	case models.IntentEnrichment:
		return e.enrichTurn(ctx, sess, wire.EntityName, wire.EntityType, emit)
	case models.IntentRecommendation:
		return e.recommendTurn(sess)
	case models.IntentComparison:
		return e.compareTurn(ctx, sess, emit)
	default:
		return e.say("I can narrow the current set, summarize it, answer questions about it, or look up background on a printer, place or person. What would you like?")
	}
}

// refineTurn AND-merges model-proposed filters onto the active plan and
// re-executes. Duplicate filters are dropped, so repeating a refinement is
// idempotent.
func (e *Engine) refineTurn(ctx context.Context, sess *models.Session, message string, emit func(Event)) (*TurnResponse, models.ChatMessage, error) {
	sub := sess.ActiveSubgroup
	current := sub.CandidateSet.QueryPlan
	if current == nil {
		return e.say("The current result set has no plan to refine. Try describing a fresh search.")
	}

	planJSON, err := json.Marshal(current)
	if err != nil {
		return nil, models.ChatMessage{}, fmt.Errorf("marshal current plan: %w", err)
	}

	newFilters, err := e.refinementFilters(ctx, string(planJSON), message)
	if err != nil {
		return nil, models.ChatMessage{}, err
	}
	if len(newFilters) == 0 {
		return e.say("I could not find a new criterion in that. Which field should narrow the set: place, date, language, publisher or subject?")
	}

	merged := &models.QueryPlan{
		Version: current.Version,
		Intent:  current.Intent,
		Filters: mergeFilters(current.Filters, newFilters),
		Limit:   current.Limit,
		Order:   current.Order,
	}
	mapLanguageFilters(merged)
	if err := planner.Validate(merged); err != nil {
		return nil, models.ChatMessage{}, err
	}

	queryText := sub.DefiningQuery + "; " + message
	return e.runPlan(ctx, sess, queryText, merged, nil, emit)
}

// aggregateTurn runs a deterministic aggregation template over the active
// subgroup. An empty subgroup yields zero bins, not an error.
func (e *Engine) aggregateTurn(ctx context.Context, sess *models.Session, intentName string, emit func(Event)) (*TurnResponse, models.ChatMessage, error) {
	intent := models.AggregationIntent(intentName)
	if intent == "" {
		intent = models.AggCountOnly
	}

	result, err := e.agg.Aggregate(ctx, intent, sess.ActiveSubgroup.CandidateSet.RecordIDs())
	if err != nil {
		return nil, models.ChatMessage{}, err
	}
	emit(Event{Type: EventAggregationResult, Payload: result})

	text := aggregationText(result)
	resp := &TurnResponse{Message: text, Aggregation: result}
	assistant := models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	return resp, assistant, nil
}

// metadataTurn answers factual questions about the active set straight from
// the index: no language-model round trip.
func (e *Engine) metadataTurn(ctx context.Context, sess *models.Session) (*TurnResponse, models.ChatMessage, error) {
	cs := sess.ActiveSubgroup.CandidateSet

	start, end, ok, err := e.index.DateSpan(ctx, cs.RecordIDs())
	if err != nil {
		return nil, models.ChatMessage{}, err
	}
	return e.say(metadataText(cs, start, end, ok))
}

// enrichTurn looks up external context for an entity the researcher named.
func (e *Engine) enrichTurn(ctx context.Context, sess *models.Session, entityName, entityType string, emit func(Event)) (*TurnResponse, models.ChatMessage, error) {
	if entityName == "" {
		return e.say("Which person, place or printer should I look up?")
	}

	etype := models.EntityType(entityType)
	switch etype {
	case models.EntityPerson, models.EntityPlace, models.EntityPublisher:
	default:
		etype = models.EntityPerson
	}

	var authorityID string
	if etype == models.EntityPerson {
		id, err := e.index.AuthorityID(ctx, entityName)
		if err != nil {
			return nil, models.ChatMessage{}, err
		}
		authorityID = id
	}

	emit(Event{Type: EventEnrichmentProgress, Payload: entityName})
	result, err := e.enricher.Enrich(ctx, etype, entityName, authorityID)
	if err != nil {
		return nil, models.ChatMessage{}, err
	}
	emit(Event{Type: EventEnrichmentResult, Payload: result})

	text := enrichmentText(entityName, result)
	resp := &TurnResponse{Message: text, Enrichment: result}
	assistant := models.ChatMessage{
		Role:       models.RoleAssistant,
		Content:    text,
		Enrichment: result,
		Timestamp:  time.Now().UTC(),
	}
	return resp, assistant, nil
}

// recommendTurn surfaces the candidates with the strongest evidence.
func (e *Engine) recommendTurn(sess *models.Session) (*TurnResponse, models.ChatMessage, error) {
	return e.say(recommendationText(sess.ActiveSubgroup.CandidateSet))
}

// compareTurn contrasts the active set along its place and date axes.
func (e *Engine) compareTurn(ctx context.Context, sess *models.Session, emit func(Event)) (*TurnResponse, models.ChatMessage, error) {
	ids := sess.ActiveSubgroup.CandidateSet.RecordIDs()

	places, err := e.agg.Aggregate(ctx, models.AggPlaceDistribution, ids)
	if err != nil {
		return nil, models.ChatMessage{}, err
	}
	dates, err := e.agg.Aggregate(ctx, models.AggDateDistribution, ids)
	if err != nil {
		return nil, models.ChatMessage{}, err
	}
	emit(Event{Type: EventAggregationResult, Payload: places})

	return e.say(comparisonText(places, dates))
}

// say wraps a plain text answer into the response and history shapes.
func (e *Engine) say(text string) (*TurnResponse, models.ChatMessage, error) {
	resp := &TurnResponse{Message: text}
	assistant := models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	return resp, assistant, nil
}

// mergeFilters appends new filters onto existing ones, dropping exact
// duplicates so a repeated refinement does not grow the plan.
func mergeFilters(existing, incoming []models.Filter) []models.Filter {
	seen := make(map[string]bool, len(existing))
	for _, f := range existing {
		seen[filterKey(f)] = true
	}

	merged := make([]models.Filter, len(existing), len(existing)+len(incoming))
	copy(merged, existing)
	for _, f := range incoming {
		key := filterKey(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, f)
	}
	return merged
}

func filterKey(f models.Filter) string {
	raw, err := jsonutil.CanonicalMarshal(f)
	if err != nil {
		return fmt.Sprintf("%v", f)
	}
	return string(raw)
}
