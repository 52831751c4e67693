// Package sink defines the client through which evaluator verdicts are
// recorded, plus the scoped reporting context used to redirect eval-time
// activity to an alternate project.
package sink

import "context"

// Scope identifies an alternate reporting destination for feedback produced
// while it is active.
type Scope struct {
	Project string
	Tags    []string
}

type scopeKey struct{}

// WithScope returns a context carrying the given reporting scope. The scope
// applies to every sink call made with the derived context and ends when the
// derived context is discarded, on both normal and error exits.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the reporting scope carried by ctx, if any.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}
