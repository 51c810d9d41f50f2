package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyBearer ctxKey = "bearer"
)

// WithUserID stores the authenticated user id for downstream handlers and
// rate limit key extraction.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxKeyUserID, id)
}

func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyUserID).(string)
	return v
}

func BearerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyBearer).(string)
	return v
}
