package http

import (
	"context"

	"github.com/omanjaya/websmansa-sub004/platform/actor"
)

const (
	ctxKeyActor   = "actor"
	ctxKeyRoute   = "route"
	ctxKeyVersion = "version"
)

func actorFromContext(ctx context.Context) actor.Actor {
	return ctx.Value(ctxKeyActor).(actor.Actor)
}

func actorInContext(ctx context.Context, a actor.Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

func routeFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyRoute).(string)
}

func routeInContext(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, ctxKeyRoute, route)
}

func versionFromContext(ctx context.Context) string {
	return ctx.Value(ctxKeyVersion).(string)
}

func versionInContext(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, ctxKeyVersion, version)
}
