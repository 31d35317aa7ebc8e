// Package reqctx carries the small set of request-scoped identifiers that
// the observability pipeline stamps onto every log line and span: the
// request id assigned at ingress and the authenticated actor (user id,
// role) resolved by the authorization layer.
package reqctx

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorIDKey
	actorRoleKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithActor(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, actorIDKey, userID)
	ctx = context.WithValue(ctx, actorRoleKey, role)
	return ctx
}

func ActorFromContext(ctx context.Context) (role, userID string) {
	userID, _ = ctx.Value(actorIDKey).(string)
	role, _ = ctx.Value(actorRoleKey).(string)
	return role, userID
}
