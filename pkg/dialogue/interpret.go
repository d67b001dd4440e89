package dialogue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/llm"
	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/prompts"
	"github.com/incipit-labs/folio-engine/pkg/retry"
)

// Temperature for structured-output calls. Low on purpose: the model is a
// translator here, not a writer.
const llmTemperature = 0.1

// historyWindow bounds how many prior turns the interpreter sees.
const historyWindow = 6

// clarificationError carries a below-gate interpretation out of the plan
// compilation path without caching it.
type clarificationError struct {
	interp *models.QueryInterpretation
}

func (e *clarificationError) Error() string {
	return fmt.Sprintf("clarification needed (confidence %.2f)", e.interp.OverallConfidence)
}

// complete runs one guarded language-model call: circuit breaker, capped
// retries on transient failures, breaker bookkeeping on the outcome.
func (e *Engine) complete(ctx context.Context, prompt, system string) (string, error) {
	if err := e.breaker.Allow(); err != nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrNLUnavailable, err.Error())
	}

	var out string
	err := retry.DoIfRetryable(ctx, e.retryCfg, func() error {
		var cerr error
		out, cerr = e.llm.Complete(ctx, prompt, system, llmTemperature)
		return cerr
	})
	if err != nil {
		e.breaker.RecordFailure()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s", apperrors.ErrNLUnavailable, err.Error())
	}

	e.breaker.RecordSuccess()
	return out, nil
}

type interpretationWire struct {
	OverallConfidence float64           `json:"overall_confidence"`
	QueryPlan         *models.QueryPlan `json:"query_plan"`
	Uncertainties     []string          `json:"uncertainties"`
	Goal              string            `json:"goal"`
}

// interpret runs the phase-one intent interpretation for a message.
func (e *Engine) interpret(ctx context.Context, sess *models.Session, message string) (*models.QueryInterpretation, error) {
	var priorTurns []string
	for _, msg := range tail(sess.Messages, historyWindow) {
		priorTurns = append(priorTurns, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}

	out, err := e.complete(ctx, prompts.BuildInterpretPrompt(message, priorTurns), prompts.InterpretSystemPrompt)
	if err != nil {
		return nil, err
	}

	wire, err := llm.ParseJSONResponse[interpretationWire](out)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable interpretation: %s", apperrors.ErrNLUnavailable, err.Error())
	}

	interp := &models.QueryInterpretation{
		OverallConfidence: wire.OverallConfidence,
		QueryPlan:         wire.QueryPlan,
		Uncertainties:     wire.Uncertainties,
		Goal:              wire.Goal,
	}
	e.logger.Debug("Interpreted query",
		zap.Float64("confidence", interp.OverallConfidence),
		zap.Int("uncertainties", len(interp.Uncertainties)))
	return interp, nil
}

// refinementFilters asks the model for the additional filters implied by a
// refinement message.
func (e *Engine) refinementFilters(ctx context.Context, currentPlanJSON, message string) ([]models.Filter, error) {
	out, err := e.complete(ctx, prompts.BuildRefinementPrompt(message, currentPlanJSON), prompts.InterpretSystemPrompt)
	if err != nil {
		return nil, err
	}

	wire, err := llm.ParseJSONResponse[interpretationWire](out)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable refinement: %s", apperrors.ErrNLUnavailable, err.Error())
	}
	if wire.QueryPlan == nil {
		return nil, nil
	}
	return wire.QueryPlan.Filters, nil
}

type explorationWire struct {
	Intent            string `json:"intent"`
	AggregationIntent string `json:"aggregation_intent"`
	EntityName        string `json:"entity_name"`
	EntityType        string `json:"entity_type"`
	RecordReference   string `json:"record_reference"`
}

// classify runs the phase-two exploration intent classification.
func (e *Engine) classify(ctx context.Context, sess *models.Session, message string) (*explorationWire, error) {
	summary := "no active result set"
	if sess.ActiveSubgroup != nil && sess.ActiveSubgroup.CandidateSet != nil {
		cs := sess.ActiveSubgroup.CandidateSet
		summary = fmt.Sprintf("%d records matching %s", cs.TotalCount, sess.ActiveSubgroup.FilterSummary)
	}

	out, err := e.complete(ctx, prompts.BuildExplorationPrompt(message, summary), prompts.ExploreSystemPrompt)
	if err != nil {
		return nil, err
	}

	wire, err := llm.ParseJSONResponse[explorationWire](out)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable classification: %s", apperrors.ErrNLUnavailable, err.Error())
	}
	return &wire, nil
}

func tail(msgs []models.ChatMessage, n int) []models.ChatMessage {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
