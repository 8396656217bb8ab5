package http

import "context"

// contextKey is a typed context key.
type contextKey string

// subjectContextKey holds the authenticated user id (token "sub").
const subjectContextKey contextKey = "subject"

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

// SubjectFrom returns the authenticated user id set by an auth middleware.
func SubjectFrom(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectContextKey).(string)
	return sub, ok && sub != ""
}
