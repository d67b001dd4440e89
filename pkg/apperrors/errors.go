package apperrors

import "errors"

var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNLUnavailable indicates the external language-model step could not
	// be reached or returned an unusable response. Never silently degraded.
	ErrNLUnavailable = errors.New("language service unavailable")

	// ErrPlanInvalid indicates a query plan failed schema validation.
	ErrPlanInvalid = errors.New("query plan invalid")

	// ErrPlanUnsupported indicates a query plan references a filter field
	// unknown to the schema contract.
	ErrPlanUnsupported = errors.New("query plan unsupported")

	// ErrNoActiveSubgroup indicates a refinement or aggregation was requested
	// without an active result set in the session.
	ErrNoActiveSubgroup = errors.New("no active result set")

	// ErrRateLimited indicates the caller exceeded the request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrDependencyNotReady indicates a required backing store is absent.
	ErrDependencyNotReady = errors.New("dependency not ready")
)
