package llm

import "time"

// Config holds configuration for creating a language-model client.
type Config struct {
	Provider string // "openai" or "anthropic"
	Endpoint string // Optional base URL override (proxies, local gateways)
	Model    string
	APIKey   string

	// Timeout bounds one Complete call. Zero means no per-call deadline
	// beyond the caller's context.
	Timeout time.Duration
}
