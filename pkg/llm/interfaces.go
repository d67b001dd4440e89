// Package llm provides the client for the external natural-language step.
// The engine only ever consumes validated structures parsed from the
// client's output; raw completions never reach SQL generation.
package llm

import (
	"context"
)

// Client defines the completion operation used by the planner and the
// dialogue engine. Use this interface for dependency injection and mocking.
type Client interface {
	// Complete generates a completion for the prompt under the given
	// system message. Deterministic consumers pass temperature 0.
	Complete(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error)

	// Model returns the configured model identifier, recorded alongside
	// cached query plans for provenance.
	Model() string
}
