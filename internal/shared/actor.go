package shared

import (
	"context"
	"strconv"
)

type actorKey struct{}

// WithActorID stamps the acting user's id onto the context.
func WithActorID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, actorKey{}, id)
}

// ActorID reads the acting user's id from the context; zero when absent.
func ActorID(ctx context.Context) int64 {
	id, _ := ctx.Value(actorKey{}).(int64)
	return id
}

// ActorIDFromHeader parses the X-Actor-ID request header value.
func ActorIDFromHeader(raw string) int64 {
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
