package httpd

import "context"

type ctxKey int

const (
	ctxKeyConnID ctxKey = iota
)

// WithConnID returns a new context that carries a connection ID.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyConnID, id)
}

// ConnIDFrom extracts the connection ID from ctx.
func ConnIDFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxKeyConnID)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
