package engine

import "context"

// Evaluator decides gateway access policy using OPA or other engines.
type Evaluator interface {
	// IsPublic reports whether a request for method and path may proceed without an access token.
	// On error callers must treat the path as protected.
	IsPublic(ctx context.Context, method, path string) (bool, error)
}
