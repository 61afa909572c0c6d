package core

import "context"

type contextKey string

const (
	ctxKeyScope    contextKey = "import_scope"
	ctxKeyClientIP contextKey = "client_ip"
)

// ContextWithScope attaches the organisation and branch an import targets.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, ctxKeyScope, scope)
}

// ScopeFromContext extracts the import scope from context.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKeyScope).(Scope)
	return s, ok
}

// ContextWithClientIP adds the caller's IP address for logging.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// ClientIPFromContext extracts the caller's IP address from context.
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP).(string); ok {
		return v
	}
	return ""
}
