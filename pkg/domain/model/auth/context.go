package auth

import "context"

type ctxKey struct{}

// ContextWithToken stores the validated token in the request context
func ContextWithToken(ctx context.Context, token *Token) context.Context {
	return context.WithValue(ctx, ctxKey{}, token)
}

// TokenFromContext extracts the validated token, if any
func TokenFromContext(ctx context.Context) (*Token, bool) {
	token, ok := ctx.Value(ctxKey{}).(*Token)
	return token, ok
}
